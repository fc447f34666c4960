package images

import (
	"fmt"
	"strings"
)

const openAPITemplate = `%[1]s:
  post:
    tags:
      - %[2]s
    summary: Upload images
    description: Validates, transcodes and stores every uploaded file. Each file is reported separately.
    requestBody:
      required: true
      content:
        multipart/form-data:
          schema:
            type: object
            properties:
              Files:
                type: array
                items:
                  type: string
                  format: binary
                description: jpg, jpeg, png or webp files of at most 2000000 bytes each
            required:
              - Files
    responses:
      '200':
        description: One result per uploaded file, in upload order
        content:
          application/json:
            schema:
              type: array
              items:
                type: object
                properties:
                  originalFileName:
                    type: string
                  uniqueId:
                    type: string
                  success:
                    type: boolean
                  error:
                    type: string
      '400':
        description: No images provided or the form could not be parsed
      '413':
        description: Request body exceeds 20000000 bytes
      '500':
        description: Internal server error
  get:
    tags:
      - %[2]s
    summary: List images
    description: Identifiers of every completely ingested image
    responses:
      '200':
        description: List of identifiers
        content:
          application/json:
            schema:
              type: object
              properties:
                images:
                  type: array
                  items:
                    type: string
      '500':
        description: Internal server error
%[1]s/{imageId}:
  delete:
    tags:
      - %[2]s
    summary: Delete image
    description: Removes the original, every variant and the metadata record
    parameters:
      - name: imageId
        in: path
        required: true
        schema:
          type: string
    responses:
      '204':
        description: Image deleted
      '400':
        description: Missing imageId
      '500':
        description: Internal server error
%[1]s/{imageId}/metadata:
  get:
    tags:
      - %[2]s
    summary: Get image metadata
    parameters:
      - name: imageId
        in: path
        required: true
        schema:
          type: string
    responses:
      '200':
        description: Camera and location metadata
        content:
          application/json:
            schema:
              type: object
              properties:
                cameraMake:
                  type: string
                cameraModel:
                  type: string
                geoLocation:
                  type: object
                  properties:
                    latitude:
                      type: number
                    longitude:
                      type: number
      '404':
        description: No metadata for this image
      '500':
        description: Internal server error
%[1]s/{imageId}/{size}:
  get:
    tags:
      - %[2]s
    summary: Get resized image
    parameters:
      - name: imageId
        in: path
        required: true
        schema:
          type: string
      - name: size
        in: path
        required: true
        description: phone, tablet, desktop, original or a numeric value
        schema:
          type: string
    responses:
      '200':
        description: Image bytes
        content:
          image/webp:
            schema:
              type: string
              format: binary
      '400':
        description: Unrecognized size
      '404':
        description: Image not found
      '500':
        description: Internal server error`

func GetOpenAPISpec(rootPath, tag string) string {
	if rootPath == "" || tag == "" {
		return ""
	}

	// Ensure rootPath doesn't have trailing slash
	rootPath = strings.TrimSuffix(rootPath, "/")

	return fmt.Sprintf(openAPITemplate, rootPath, tag)
}
