package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/saphetor/vc-file-upload/upload/network/chunkuploader"
)

const (
	chunkUploadPath      = "/sample-files/filestore-upload/add/"
	completeUploadPath   = "/sample-files/filestore-upload/complete/"
	singleUploadPath     = "/api/v1/sample-files/upload/"
	externalFileAddPath  = "/api/v1/sample-files/"
	chunkFormField       = "data-file"
	maxErrorBodyBytes    = 64 * 1024
	uploadIDQueryParam   = "upload_id"
	octetStreamMediaType = "application/octet-stream"
)

// Record is the JSON document the API returns for an uploaded or registered file.
type Record map[string]interface{}

type chunkUploadResponse struct {
	UploadID *string `json:"upload_id"`
}

type externalFileRequest struct {
	FileURL        string `json:"file_url"`
	SampleFileName string `json:"sample_file_name"`
}

// APIClient talks to the clinical sample-file API through a Session.
type APIClient struct {
	session *Session
	baseURL *url.URL
	logger  log.Logger
}

var _ chunkuploader.ChunkSender = (*APIClient)(nil)

// NewAPIClient ...
func NewAPIClient(session *Session, baseURL string, logger log.Logger) (*APIClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute: %s", baseURL)
	}
	return &APIClient{
		session: session,
		baseURL: u,
		logger:  logger,
	}, nil
}

// URL resolves an API path against the base URL.
func (c *APIClient) URL(path string) string {
	return c.baseURL.ResolveReference(&url.URL{Path: path}).String()
}

// SendChunk uploads one chunk of a file. Any failure is returned as *chunkuploader.UploadError.
func (c *APIClient) SendChunk(ctx context.Context, fileName string, chunk []byte, r chunkuploader.ChunkRange, uploadID string) (string, error) {
	body, contentType, err := chunkForm(fileName, chunk)
	if err != nil {
		return "", &chunkuploader.UploadError{Err: fmt.Errorf("build form for %s: %w", fileName, err)}
	}

	apiURL := c.URL(chunkUploadPath)
	if uploadID != "" {
		apiURL += "?" + url.Values{uploadIDQueryParam: {uploadID}}.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, apiURL, body)
	if err != nil {
		return "", &chunkuploader.UploadError{Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %s", r))

	resp, err := c.session.Do(req)
	if err != nil {
		uploadErr := &chunkuploader.UploadError{Err: fmt.Errorf("upload chunk %s of %s: %w", r, fileName, err)}
		if resp != nil {
			uploadErr.StatusCode = resp.StatusCode
			c.closeBody(resp.Body)
		}
		return "", uploadErr
	}
	defer c.closeBody(resp.Body)

	c.logger.Debugf("Chunk upload response status: %d", resp.StatusCode)

	if !isSuccess(resp.StatusCode) {
		errorBody := readErrorBody(resp.Body)
		return "", &chunkuploader.UploadError{
			StatusCode: resp.StatusCode,
			Body:       errorBody,
			Err:        httpError(resp.StatusCode, errorBody),
		}
	}

	var response chunkUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", &chunkuploader.UploadError{Err: fmt.Errorf("invalid response while uploading file %s: %w", fileName, err)}
	}
	if response.UploadID == nil {
		return "", &chunkuploader.UploadError{Err: fmt.Errorf("invalid response while uploading file %s: %w", fileName, chunkuploader.ErrMissingUploadID)}
	}
	return *response.UploadID, nil
}

// CompleteMultipartUpload finalizes a chunked upload with the MD5 of the whole file.
func (c *APIClient) CompleteMultipartUpload(ctx context.Context, uploadID, md5 string) (Record, error) {
	form := url.Values{"upload_id": {uploadID}, "md5": {md5}}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.URL(completeUploadPath), []byte(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.doRecord(req)
}

// UploadFile sends a whole file in one PUT request.
// The body is rewound on retries, so it has to be an io.ReadSeeker.
func (c *APIClient) UploadFile(ctx context.Context, fileName string, body io.ReadSeeker, size int64) (Record, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, c.URL(singleUploadPath), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Disposition", contentDisposition(fileName))
	req.Header.Set("Content-Type", octetStreamMediaType)

	// retryablehttp does not set the length for io.ReadSeeker bodies
	req.Header.Set("Content-Length", fmt.Sprintf("%d", size))
	req.ContentLength = size

	return c.doRecord(req)
}

// RegisterExternalFile asks the service to fetch a file from a URL it can reach.
func (c *APIClient) RegisterExternalFile(ctx context.Context, fileURL, fileName string) (Record, error) {
	body, err := json.Marshal(externalFileRequest{FileURL: fileURL, SampleFileName: fileName})
	if err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.URL(externalFileAddPath), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRecord(req)
}

func (c *APIClient) doRecord(req *retryablehttp.Request) (Record, error) {
	resp, err := c.session.Do(req)
	if err != nil {
		if resp != nil {
			c.closeBody(resp.Body)
		}
		return nil, err
	}
	defer c.closeBody(resp.Body)

	if !isSuccess(resp.StatusCode) {
		return nil, httpError(resp.StatusCode, readErrorBody(resp.Body))
	}

	var record Record
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if record == nil {
		record = Record{}
	}
	return record, nil
}

func (c *APIClient) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Printf(err.Error())
	}
}

func chunkForm(fileName string, chunk []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	buf.Grow(len(chunk) + 512)
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, chunkFormField, escapeQuotes(fileName)))
	header.Set("Content-Type", octetStreamMediaType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(chunk); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

func contentDisposition(fileName string) string {
	return fmt.Sprintf(`attachment; filename="%s"`, escapeQuotes(fileName))
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func isSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

func readErrorBody(body io.Reader) []byte {
	b, err := io.ReadAll(io.LimitReader(body, maxErrorBodyBytes))
	if err != nil {
		return nil
	}
	return b
}

func httpError(statusCode int, body []byte) error {
	return &HTTPError{StatusCode: statusCode, Body: string(body)}
}

// HTTPError is a non-2xx API response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}
