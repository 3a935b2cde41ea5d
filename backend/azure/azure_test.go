package azure

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/mwantia/unifs/backend"
	"github.com/mwantia/unifs/data"
)

const azuriteKey = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="

func newOfflineBackend(t *testing.T, endpoint string) *AzureBackend {
	t.Helper()

	ab, err := NewAzureBackend(Config{
		Account:    "devstoreaccount1",
		AccountKey: azuriteKey,
		Container:  "media",
		Endpoint:   endpoint,
	})
	if err != nil {
		t.Fatalf("NewAzureBackend failed: %v", err)
	}

	return ab
}

func TestConfig_Validate(t *testing.T) {
	cases := map[string]Config{
		"missing account":   {AccountKey: azuriteKey, Container: "c"},
		"missing key":       {Account: "a", Container: "c"},
		"missing container": {Account: "a", AccountKey: azuriteKey},
		"invalid key":       {Account: "a", AccountKey: "not base64!", Container: "c"},
	}

	for name, cfg := range cases {
		if _, err := NewAzureBackend(cfg); !errors.Is(err, data.ErrInvalid) {
			t.Errorf("%s: expected ErrInvalid, got %v", name, err)
		}
	}
}

func TestConfig_DefaultEndpoint(t *testing.T) {
	ab := newOfflineBackend(t, "")

	if ab.cfg.Endpoint != "https://devstoreaccount1.blob.core.windows.net" {
		t.Errorf("Unexpected endpoint %q", ab.cfg.Endpoint)
	}
	if ab.cfg.SignedURLTTL != DefaultSignedURLTTL || ab.cfg.BlockSize != DefaultBlockSize {
		t.Errorf("Unexpected defaults: %+v", ab.cfg)
	}
}

func TestAzureBackend_SignedURL(t *testing.T) {
	ab := newOfflineBackend(t, "")
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ab.now = func() time.Time { return now }

	ctx := t.Context()
	if err := ab.ChangeDirectory(ctx, "/videos"); err != nil {
		t.Fatalf("ChangeDirectory failed: %v", err)
	}

	signed, ok, err := backend.SignedURL(ctx, ab, "my clip.mp4")
	if err != nil || !ok {
		t.Fatalf("SignedURL failed: %v (supported: %v)", err, ok)
	}

	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if u.Host != "devstoreaccount1.blob.core.windows.net" || u.Path != "/media/videos/my clip.mp4" {
		t.Errorf("Unexpected URL target %s%s", u.Host, u.Path)
	}
	if !strings.Contains(u.RawPath+u.EscapedPath(), "my%20clip.mp4") {
		t.Errorf("Expected escaped blob name in %q", signed)
	}

	query := u.Query()
	if query.Get("sp") != "r" {
		t.Errorf("Expected read-only permission, got %q", query.Get("sp"))
	}
	if query.Get("spr") != "https" {
		t.Errorf("Expected https protocol, got %q", query.Get("spr"))
	}
	if query.Get("sig") == "" {
		t.Errorf("Expected a signature in %q", signed)
	}

	expiry, err := time.Parse(time.RFC3339, query.Get("se"))
	if err != nil {
		t.Fatalf("Expiry parse failed: %v", err)
	}
	if !expiry.Equal(now.Add(4 * time.Hour)) {
		t.Errorf("Expected expiry 4h after now, got %v", expiry)
	}
}

func TestAzureBackend_SignedURLPlainEndpoint(t *testing.T) {
	ab := newOfflineBackend(t, "http://127.0.0.1:10000/devstoreaccount1")

	signed, err := ab.SignedURL(t.Context(), "/a.txt")
	if err != nil {
		t.Fatalf("SignedURL failed: %v", err)
	}
	if !strings.HasPrefix(signed, "http://127.0.0.1:10000/devstoreaccount1/media/a.txt?") {
		t.Errorf("Unexpected URL %q", signed)
	}
	if !strings.Contains(signed, "spr=https%2Chttp") {
		t.Errorf("Expected https,http protocol in %q", signed)
	}

	if _, err := ab.SignedURL(t.Context(), "/"); !errors.Is(err, data.ErrIsDirectory) {
		t.Errorf("Expected ErrIsDirectory for root, got %v", err)
	}
}

func TestAzureBackend_RejectsPartialWrites(t *testing.T) {
	ctx := t.Context()
	ab := newOfflineBackend(t, "")

	if _, err := ab.WriteObject(ctx, "/a.txt", backend.WriteOptions{Append: true}); !errors.Is(err, data.ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported for append, got %v", err)
	}
	if _, err := ab.WriteObject(ctx, "/a.txt", backend.WriteOptions{Offset: 3}); !errors.Is(err, data.ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported for offset, got %v", err)
	}
}

func TestStatBuilders(t *testing.T) {
	modified := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	name := "a/b.txt"
	size := int64(5)
	contentType := "text/plain"
	etag := azcore.ETag(`"0x8D"`)

	file := itemToFileStat(&container.BlobItem{
		Name: &name,
		Properties: &container.BlobProperties{
			ContentLength: &size,
			ContentType:   &contentType,
			LastModified:  &modified,
			ETag:          &etag,
		},
	})
	if file.IsDir() || file.Name != "b.txt" || file.Size != 5 || file.ETag != "0x8D" || file.ContentType != "text/plain" {
		t.Errorf("Unexpected file stat: %+v", file)
	}

	prefix := "a/sub/"
	dir := prefixToDirStat(&container.BlobPrefix{Name: &prefix})
	if !dir.IsDir() || dir.Key != "a/sub" || dir.Name != "sub" {
		t.Errorf("Unexpected directory stat: %+v", dir)
	}

	bare := itemToFileStat(&container.BlobItem{Name: &name})
	if bare.IsDir() || bare.Size != 0 {
		t.Errorf("Unexpected stat without properties: %+v", bare)
	}
}

// blobServer answers every HEAD with BlobNotFound, every listing with an
// empty page and records DELETE paths.
type blobServer struct {
	mu      sync.Mutex
	deleted []string
}

func (bs *blobServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("x-ms-version", "2023-11-03")

	switch {
	case r.Method == http.MethodHead:
		w.Header().Set("x-ms-error-code", "BlobNotFound")
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodGet && r.URL.Query().Get("comp") == "list":
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?>` +
			`<EnumerationResults ContainerName="media"><Prefix>` + r.URL.Query().Get("prefix") + `</Prefix>` +
			`<Delimiter>/</Delimiter><Blobs></Blobs><NextMarker /></EnumerationResults>`))
	case r.Method == http.MethodDelete:
		bs.mu.Lock()
		bs.deleted = append(bs.deleted, r.URL.Path)
		bs.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestAzureBackend_StatMissingBlobIsDirectory(t *testing.T) {
	server := httptest.NewServer(&blobServer{})
	defer server.Close()

	ab := newOfflineBackend(t, server.URL)

	stat, err := ab.StatObject(t.Context(), "/does/not/exist.txt")
	if err != nil {
		t.Fatalf("StatObject failed: %v", err)
	}
	if !stat.IsDir() || stat.Size != 0 || stat.Key != "does/not/exist.txt" {
		t.Errorf("Expected directory stat for missing blob, got %+v", stat)
	}
}

func TestAzureBackend_DeleteTreeRemovesMarker(t *testing.T) {
	blobs := &blobServer{}
	server := httptest.NewServer(blobs)
	defer server.Close()

	ab := newOfflineBackend(t, server.URL)

	if err := ab.DeleteTree(t.Context(), "/a/sub"); err != nil {
		t.Fatalf("DeleteTree failed: %v", err)
	}
	if err := ab.DeleteTree(t.Context(), "/"); err != nil {
		t.Fatalf("DeleteTree of root failed: %v", err)
	}

	blobs.mu.Lock()
	defer blobs.mu.Unlock()

	if len(blobs.deleted) != 1 || blobs.deleted[0] != "/media/a/sub/" {
		t.Errorf("Expected only the marker blob to be deleted, got %v", blobs.deleted)
	}
}
