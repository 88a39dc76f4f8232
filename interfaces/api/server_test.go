package api

import (
	"crypto/ed25519"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/felixgeelhaar/narcache/application/upload"
	"github.com/felixgeelhaar/narcache/domain/hash"
	"github.com/felixgeelhaar/narcache/domain/narinfo"
	"github.com/felixgeelhaar/narcache/domain/signature"
	indexmem "github.com/felixgeelhaar/narcache/infrastructure/index/memory"
	storagemem "github.com/felixgeelhaar/narcache/infrastructure/storage/memory"
)

func testKeypair(t *testing.T) (signature.PublicKey, ed25519.PrivateKey) {
	t.Helper()

	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	private := ed25519.NewKeyFromSeed(seed)

	return signature.PublicKey{
		KeyName: "test-cache-1",
		Bytes:   private.Public().(ed25519.PublicKey),
	}, private
}

func metadataFor(t *testing.T, name string, private ed25519.PrivateKey) string {
	t.Helper()

	narHash, err := hash.Parse("sha256:1b8m03r63zqhnjf7l5wnldhh7c134ap5vpj0850ymkq1iyzicy5s")
	if err != nil {
		t.Fatalf("parsing hash: %v", err)
	}

	info := &narinfo.NarInfo{
		StorePath:   "/nix/store/" + name + "-pkg-1.0",
		NarHash:     narHash,
		NarSize:     4096,
		URL:         "nar/" + name + ".nar.xz",
		Compression: narinfo.CompressionXZ,
		References:  []string{},
	}
	info.AddSignature(signature.Signature{
		KeyName: "test-cache-1",
		Bytes:   ed25519.Sign(private, []byte(info.Fingerprint())),
	})

	return info.String()
}

func newTestServer(t *testing.T, trusted []signature.PublicKey, maxUpload int64) *httptest.Server {
	t.Helper()

	coordinator, err := upload.New(storagemem.New(), indexmem.New(), trusted)
	if err != nil {
		t.Fatalf("upload.New() error = %v", err)
	}

	server, err := New(Config{
		Coordinator:    coordinator,
		Priority:       40,
		MaxUploadBytes: maxUpload,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return ts
}

func do(t *testing.T, method, url string, body io.Reader) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func TestNewRequiresCoordinator(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Error("New() without coordinator should fail")
	}
}

func TestCacheInfo(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil, 0)

	resp := do(t, http.MethodGet, ts.URL+"/nix-cache-info", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	want := "StoreDir: /nix/store\nWantMassQuery: 1\nPriority: 40\n"
	if string(body) != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestUploadAndFetchRoundTrip(t *testing.T) {
	t.Parallel()

	public, private := testKeypair(t)
	ts := newTestServer(t, []signature.PublicKey{public}, 0)

	// Bytes first.
	resp := do(t, http.MethodPut, ts.URL+"/nar/abc.nar.xz", strings.NewReader("nar bytes"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("PUT nar status = %d, want 201", resp.StatusCode)
	}

	// Not visible until metadata arrives.
	resp = do(t, http.MethodGet, ts.URL+"/nar/abc.nar.xz", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET nar before publish status = %d, want 404", resp.StatusCode)
	}

	// Metadata completes the pair.
	text := metadataFor(t, "abc", private)
	resp = do(t, http.MethodPut, ts.URL+"/abc.narinfo", strings.NewReader(text))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("PUT narinfo status = %d, want 201", resp.StatusCode)
	}

	// Metadata fetch.
	resp = do(t, http.MethodGet, ts.URL+"/abc.narinfo", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET narinfo status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != narInfoContentType {
		t.Errorf("Content-Type = %q, want %q", got, narInfoContentType)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != text {
		t.Errorf("GET narinfo body = %q, want the uploaded record", body)
	}

	// Artifact fetch.
	resp = do(t, http.MethodGet, ts.URL+"/nar/abc.nar.xz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET nar status = %d, want 200", resp.StatusCode)
	}
	body, _ = io.ReadAll(resp.Body)
	if string(body) != "nar bytes" {
		t.Errorf("GET nar body = %q, want %q", body, "nar bytes")
	}

	// Existence check.
	resp = do(t, http.MethodHead, ts.URL+"/nar/abc.nar.xz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("HEAD nar status = %d, want 200", resp.StatusCode)
	}
}

func TestMetadataFirstOrder(t *testing.T) {
	t.Parallel()

	_, private := testKeypair(t)
	ts := newTestServer(t, nil, 0)

	resp := do(t, http.MethodPut, ts.URL+"/xyz.narinfo", strings.NewReader(metadataFor(t, "xyz", private)))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("PUT narinfo status = %d, want 201", resp.StatusCode)
	}

	resp = do(t, http.MethodPut, ts.URL+"/nar/xyz.nar.xz", strings.NewReader("bytes"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("PUT nar status = %d, want 201", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, ts.URL+"/nar/xyz.nar.xz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET nar status = %d, want 200", resp.StatusCode)
	}
}

func TestNotFoundResponses(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil, 0)

	resp := do(t, http.MethodGet, ts.URL+"/ghost.narinfo", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET narinfo status = %d, want 404", resp.StatusCode)
	}

	var parsed errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if len(parsed.Errors) != 1 || parsed.Errors[0].Code != "not_found" {
		t.Errorf("error body = %+v, want one not_found entry", parsed.Errors)
	}

	resp = do(t, http.MethodHead, ts.URL+"/nar/ghost.nar.xz", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("HEAD nar status = %d, want 404", resp.StatusCode)
	}

	// Paths without the metadata extension are not records.
	resp = do(t, http.MethodGet, ts.URL+"/ghost", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET bare name status = %d, want 404", resp.StatusCode)
	}
}

func TestRejectsMalformedMetadata(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil, 0)

	resp := do(t, http.MethodPut, ts.URL+"/bad.narinfo", strings.NewReader("not a narinfo"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("PUT malformed narinfo status = %d, want 400", resp.StatusCode)
	}
}

func TestRejectsUntrustedSignature(t *testing.T) {
	t.Parallel()

	public, _ := testKeypair(t)
	ts := newTestServer(t, []signature.PublicKey{public}, 0)

	otherSeed := make([]byte, ed25519.SeedSize)
	otherSeed[0] = 0x77
	other := ed25519.NewKeyFromSeed(otherSeed)

	resp := do(t, http.MethodPut, ts.URL+"/bad.narinfo", strings.NewReader(metadataFor(t, "bad", other)))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("PUT untrusted narinfo status = %d, want 400", resp.StatusCode)
	}

	var parsed errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if len(parsed.Errors) != 1 || parsed.Errors[0].Code != "signature_invalid" {
		t.Errorf("error body = %+v, want one signature_invalid entry", parsed.Errors)
	}
}

func TestRejectsWrongNarExtension(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil, 0)

	resp := do(t, http.MethodPut, ts.URL+"/nar/abc.txt", strings.NewReader("bytes"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("PUT non-nar name status = %d, want 400", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, ts.URL+"/nar/abc.txt", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET non-nar name status = %d, want 404", resp.StatusCode)
	}
}

func TestUploadSizeCap(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil, 16)

	resp := do(t, http.MethodPut, ts.URL+"/nar/big.nar.xz", strings.NewReader(strings.Repeat("x", 64)))
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("PUT oversized nar status = %d, want 413", resp.StatusCode)
	}
}
