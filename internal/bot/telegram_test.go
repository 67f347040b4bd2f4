package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadPhotoSize(t *testing.T) {
	var handlerCalled bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/foo.jpeg" {
			handlerCalled = true
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("123"))
		} else {
			t.Errorf("invalid request to test server: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer ts.Close()

	getFileDirectUrl := func(fileId string) (string, error) {
		return fmt.Sprintf("%s/%s.jpeg", ts.URL, fileId), nil
	}

	photoSize := tgbotapi.PhotoSize{
		FileID:       "foo",
		FileUniqueID: "1",
		Width:        371,
		Height:       495,
		FileSize:     28548,
	}

	bytes, err := downloadFileID(context.Background(), getFileDirectUrl, photoSize.FileID)
	require.NoError(t, err)

	assert.Equal(t, []byte("123"), bytes)
	assert.True(t, handlerCalled)
}

func TestDownloadFileID_URLResolutionError(t *testing.T) {
	getFileDirectURL := func(fileID string) (string, error) {
		return "", errors.New("bad file id")
	}

	_, err := downloadFileID(context.Background(), getFileDirectURL, "test-file-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get file URL")
}

func TestDownloadFileID_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	getFileDirectURL := func(fileID string) (string, error) {
		return ts.URL + "/" + fileID, nil
	}

	_, err := downloadFileID(context.Background(), getFileDirectURL, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}
