package metadata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	jpegAPP1 = 0xE1

	tagExifIFD    = 0x8769
	tagGPSIFD     = 0x8825
	tagInteropIFD = 0xA005

	// maxDirectories bounds how many IFDs one profile may chain or point to.
	maxDirectories = 32
)

var exifIntro = []byte("Exif\x00\x00")

var errNoProfile = errors.New("no EXIF profile")

// typeSizes holds the element width of every TIFF field type. Unknown types
// count as one byte when bounding a field.
var typeSizes = map[uint16]uint64{
	1: 1, 2: 1, 3: 2, 4: 4, 5: 8, 6: 1, 7: 1, 8: 2, 9: 4, 10: 8, 11: 4, 12: 8,
}

// locateTIFF returns the TIFF structure embedded in data, looking for it the
// same way exif.Decode does: a bare TIFF header, a raw "Exif" block, or the
// first JPEG APP1 section.
func locateTIFF(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, errNoProfile
	}
	switch string(data[:4]) {
	case "II*\x00", "MM\x00*":
		return data, nil
	case "Exif":
		if len(data) < len(exifIntro) {
			return nil, errNoProfile
		}
		return data[len(exifIntro):], nil
	}

	for i := 0; i < len(data); {
		j := bytes.IndexByte(data[i:], 0xFF)
		if j < 0 || i+j+1 >= len(data) {
			return nil, errNoProfile
		}
		marker := i + j + 1
		if data[marker] != jpegAPP1 {
			i = marker + 1
			continue
		}
		if marker+3 > len(data) {
			return nil, errNoProfile
		}
		length := int(binary.BigEndian.Uint16(data[marker+1:marker+3])) - 2
		start := marker + 3
		if length == 0 {
			i = start
			continue
		}
		if length < 0 || start+length > len(data) {
			return nil, errNoProfile
		}
		section := data[start : start+length]
		if !bytes.HasPrefix(section, exifIntro) {
			return nil, errNoProfile
		}
		return section[len(exifIntro):], nil
	}
	return nil, errNoProfile
}

// checkTIFF walks every IFD reachable from the header, including the Exif,
// GPS and interoperability sub-directories, and rejects any field whose
// declared size does not fit in the buffer. exif.Decode allocates by the
// declared element count before reading, so such a field is never handed to it.
func checkTIFF(tiff []byte) error {
	if len(tiff) < 8 {
		return errNoProfile
	}

	var order binary.ByteOrder
	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return fmt.Errorf("unknown byte order %q", tiff[:2])
	}
	if order.Uint16(tiff[2:4]) != 42 {
		return errors.New("bad TIFF magic")
	}

	w := &ifdWalker{tiff: tiff, order: order, visited: map[uint32]bool{}}
	next := order.Uint32(tiff[4:8])
	for next != 0 {
		following, err := w.dir(next)
		if err != nil {
			return err
		}
		next = following
	}
	return nil
}

type ifdWalker struct {
	tiff    []byte
	order   binary.ByteOrder
	visited map[uint32]bool
}

// dir checks the IFD at offset and the sub-directories it points to, and
// returns the offset of the next IFD in the chain.
func (w *ifdWalker) dir(offset uint32) (uint32, error) {
	if w.visited[offset] {
		return 0, fmt.Errorf("IFD at %d is referenced twice", offset)
	}
	if len(w.visited) >= maxDirectories {
		return 0, errors.New("too many IFDs")
	}
	w.visited[offset] = true

	size := uint64(len(w.tiff))
	if uint64(offset)+2 > size {
		return 0, fmt.Errorf("IFD at %d is out of bounds", offset)
	}
	count := uint64(w.order.Uint16(w.tiff[offset:]))
	end := uint64(offset) + 2 + 12*count + 4
	if end > size {
		return 0, fmt.Errorf("IFD at %d with %d entries is out of bounds", offset, count)
	}

	for i := uint64(0); i < count; i++ {
		entry := w.tiff[uint64(offset)+2+12*i:]
		tag := w.order.Uint16(entry[0:2])
		typ := w.order.Uint16(entry[2:4])
		n := uint64(w.order.Uint32(entry[4:8]))

		width, known := typeSizes[typ]
		if !known {
			width = 1
		}
		length := width * n
		if length > size {
			return 0, fmt.Errorf("tag %#x declares %d bytes", tag, length)
		}
		if length > 4 && uint64(w.order.Uint32(entry[8:12]))+length > size {
			return 0, fmt.Errorf("tag %#x points out of bounds", tag)
		}

		switch tag {
		case tagExifIFD, tagGPSIFD, tagInteropIFD:
			sub, ok := w.pointer(entry, typ, n)
			if !ok {
				continue
			}
			if _, err := w.dir(sub); err != nil {
				return 0, err
			}
		}
	}

	return w.order.Uint32(w.tiff[end-4 : end]), nil
}

// pointer reads the first value of a SHORT or LONG field as an IFD offset.
func (w *ifdWalker) pointer(entry []byte, typ uint16, n uint64) (uint32, bool) {
	if n == 0 {
		return 0, false
	}
	value := entry[8:12]
	switch typ {
	case 3:
		if n > 2 {
			value = w.tiff[w.order.Uint32(entry[8:12]):]
		}
		return uint32(w.order.Uint16(value)), true
	case 4:
		if n > 1 {
			value = w.tiff[w.order.Uint32(entry[8:12]):]
		}
		return w.order.Uint32(value), true
	}
	return 0, false
}
