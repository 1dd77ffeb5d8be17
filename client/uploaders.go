package client

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/richinsley/comfyagent/comfyerr"
)

const (
	UploadImageEndpoint = "/upload/image"
	UploadMaskEndpoint  = "/upload/mask"
)

// UploadResponse is the reply to an upload. Older servers send filename instead of name.
type UploadResponse struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// StoredPath is the value a graph input must reference to load the upload.
func (r *UploadResponse) StoredPath() (string, error) {
	name := r.Name
	if name == "" {
		name = r.Filename
	}
	if name == "" {
		return "", comfyerr.New(comfyerr.APIError, "upload response has no file name").
			WithDetails(map[string]any{"subfolder": r.Subfolder, "type": r.Type})
	}
	if r.Subfolder != "" {
		return r.Subfolder + "/" + name, nil
	}
	return name, nil
}

// UploadFile posts the file at path as the multipart field "image".
func (c *ComfyClient) UploadFile(ctx context.Context, endpoint, path string) (*UploadResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return c.UploadFileFromReader(ctx, endpoint, file, filepath.Base(path))
}

func (c *ComfyClient) UploadFileFromReader(ctx context.Context, endpoint string, r io.Reader, filename string) (*UploadResponse, error) {
	var requestBody bytes.Buffer
	writer := multipart.NewWriter(&requestBody)

	formFile, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(formFile, r); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	resp := &UploadResponse{}
	if err := c.post(ctx, endpoint, &requestBody, writer.FormDataContentType(), resp); err != nil {
		return nil, err
	}
	return resp, nil
}
