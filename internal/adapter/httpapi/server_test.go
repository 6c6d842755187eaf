package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loganrenz/narduk-grib/internal/config"
	"github.com/loganrenz/narduk-grib/internal/domain"
	"github.com/loganrenz/narduk-grib/internal/fetch"
	"github.com/loganrenz/narduk-grib/internal/gribsvc"
	"github.com/loganrenz/narduk-grib/internal/observability"
	"github.com/loganrenz/narduk-grib/internal/store"
)

type stubDecoder struct {
	ds  *domain.Dataset
	err error
}

func (d *stubDecoder) Decode(string) (*domain.Dataset, error) { return d.ds, d.err }
func (d *stubDecoder) Invalidate(string)                      {}

type noopEvents struct{}

func (noopEvents) Publish(context.Context, domain.FileEvent) error { return nil }

type serverParams struct {
	maxUpload    int64
	maxDownload  int64
	allowPrivate bool
}

type testServer struct {
	srv *Server
	dec *stubDecoder
}

func newTestServer(t *testing.T, params serverParams) *testServer {
	t.Helper()

	if params.maxUpload == 0 {
		params.maxUpload = 1 << 20
	}
	if params.maxDownload == 0 {
		params.maxDownload = 1 << 20
	}

	dir := t.TempDir()
	blobs, err := store.NewBlobs(filepath.Join(dir, "grib"))
	require.NoError(t, err)
	catalog, err := store.OpenCatalog(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = catalog.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()

	validate := func(rawURL string) error {
		return domain.ValidateDownloadURL(rawURL, params.allowPrivate)
	}
	downloader := fetch.NewDownloader(validate, 5*time.Second, params.maxDownload, logger)

	dec := &stubDecoder{}
	svc := gribsvc.New(blobs, catalog, dec, downloader, noopEvents{}, logger, metrics)

	ui := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>grib viewer</html>")},
		"app.js":     &fstest.MapFile{Data: []byte("// viewer")},
	}

	cfg := &config.Config{
		HTTPAddr:       ":0",
		MaxUploadBytes: params.maxUpload,
	}
	return &testServer{srv: NewServer(cfg, svc, ui, logger, metrics), dec: dec}
}

func (ts *testServer) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func multipartBody(t *testing.T, field, filename, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func uploadFile(t *testing.T, ts *testServer, filename, content string) string {
	t.Helper()
	body, contentType := multipartBody(t, "file", filename, content)
	rec := ts.do(t, http.MethodPost, "/api/grib/upload", body, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeJSON(t, rec)["id"].(string)
}

func stubDataset() *domain.Dataset {
	base := time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)
	return &domain.Dataset{
		Fields: []domain.Field{
			{
				Name: "t", Unit: "K",
				LevelKind: domain.LevelIsobaricInhPa, LevelValue: 850,
				ReferenceTime: base, ValidTime: base,
				Lats: []float64{10, 20}, Lons: []float64{30, 40},
				Values: []float64{280, 281, math.NaN(), 283},
			},
		},
		Attributes: map[string]string{"centre": "kwbc"},
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, serverParams{})

	rec := ts.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeJSON(t, rec)["status"])
}

func TestReadyz(t *testing.T) {
	ts := newTestServer(t, serverParams{})

	rec := ts.do(t, http.MethodGet, "/readyz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decodeJSON(t, rec)["status"])
}

func TestAPIIndex(t *testing.T) {
	ts := newTestServer(t, serverParams{})

	rec := ts.do(t, http.MethodGet, "/api/", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, "grib-viewer", body["service"])
	assert.Equal(t, Version, body["version"])
}

func TestUploadAndList(t *testing.T) {
	ts := newTestServer(t, serverParams{})

	id := uploadFile(t, ts, "gfs.t00z.pgrb2.f000", "GRIB fake model output")
	assert.NotEmpty(t, id)

	rec := ts.do(t, http.MethodGet, "/api/grib/files", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, float64(1), body["count"])
	files := body["files"].([]any)
	require.Len(t, files, 1)
	file := files[0].(map[string]any)
	assert.Equal(t, id, file["id"])
	assert.Equal(t, "gfs.t00z.pgrb2.f000", file["filename"])
	assert.Equal(t, "upload", file["source"])
}

func TestUpload_RejectsNonGRIB(t *testing.T) {
	ts := newTestServer(t, serverParams{})

	body, contentType := multipartBody(t, "file", "notes.txt", "plain text")
	rec := ts.do(t, http.MethodPost, "/api/grib/upload", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeJSON(t, rec)["error"], "not a GRIB file")
}

func TestUpload_MissingFileField(t *testing.T) {
	ts := newTestServer(t, serverParams{})

	body, contentType := multipartBody(t, "attachment", "x.grib2", "GRIBdata")
	rec := ts.do(t, http.MethodPost, "/api/grib/upload", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing file field", decodeJSON(t, rec)["error"])
}

func TestUpload_NotMultipart(t *testing.T) {
	ts := newTestServer(t, serverParams{})

	rec := ts.do(t, http.MethodPost, "/api/grib/upload", strings.NewReader("GRIBdata"), "application/octet-stream")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_OverSizeLimit(t *testing.T) {
	ts := newTestServer(t, serverParams{maxUpload: 512})

	body, contentType := multipartBody(t, "file", "big.grib2", "GRIB"+strings.Repeat("x", 4096))
	rec := ts.do(t, http.MethodPost, "/api/grib/upload", body, contentType)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestDownload(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "GRIB remote model output")
	}))
	defer upstream.Close()

	ts := newTestServer(t, serverParams{allowPrivate: true})

	rec := ts.do(t, http.MethodGet, "/api/grib/download?url="+upstream.URL+"/gfs.f000", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeJSON(t, rec)
	assert.Equal(t, "gfs.f000", body["filename"])
	assert.Equal(t, "url", body["source"])
	assert.Equal(t, upstream.URL+"/gfs.f000", body["origin_url"])
}

func TestDownload_MissingURL(t *testing.T) {
	ts := newTestServer(t, serverParams{})

	rec := ts.do(t, http.MethodGet, "/api/grib/download", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing url parameter", decodeJSON(t, rec)["error"])
}

func TestDownload_RejectsPrivateURL(t *testing.T) {
	ts := newTestServer(t, serverParams{allowPrivate: false})

	rec := ts.do(t, http.MethodGet, "/api/grib/download?url=http://169.254.169.254/latest/meta-data", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeJSON(t, rec)["error"], "rejected")
}

func TestDownload_UpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer upstream.Close()

	ts := newTestServer(t, serverParams{allowPrivate: true})

	rec := ts.do(t, http.MethodGet, "/api/grib/download?url="+upstream.URL+"/missing.grib2", nil, "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestDownload_OverSizeLimit(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "GRIB"+strings.Repeat("x", 4096))
	}))
	defer upstream.Close()

	ts := newTestServer(t, serverParams{allowPrivate: true, maxDownload: 512})

	rec := ts.do(t, http.MethodGet, "/api/grib/download?url="+upstream.URL+"/big.grib2", nil, "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMetadata(t *testing.T) {
	ts := newTestServer(t, serverParams{})
	ts.dec.ds = stubDataset()

	id := uploadFile(t, ts, "model.grib2", "GRIBdata")

	rec := ts.do(t, http.MethodGet, "/api/grib/metadata/"+id, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, []any{"t"}, body["variables"])
	coords := body["coordinates"].(map[string]any)
	assert.Equal(t, []any{float64(850)}, coords["isobaricInhPa"])
}

func TestMetadata_UnknownFile(t *testing.T) {
	ts := newTestServer(t, serverParams{})

	rec := ts.do(t, http.MethodGet, "/api/grib/metadata/nonexistent", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestData(t *testing.T) {
	ts := newTestServer(t, serverParams{})
	ts.dec.ds = stubDataset()

	id := uploadFile(t, ts, "model.grib2", "GRIBdata")

	rec := ts.do(t, http.MethodGet, "/api/grib/data/"+id+"?variable=t&level=840", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, id, body["file_id"])
	assert.Equal(t, "model.grib2", body["filename"])

	data := body["data"].(map[string]any)
	slabs := data["t"].([]any)
	require.Len(t, slabs, 1)
	slab := slabs[0].(map[string]any)
	assert.Equal(t, float64(850), slab["level"])

	// Missing points serialize as JSON null, not NaN.
	values := slab["values"].([]any)
	row := values[1].([]any)
	assert.Nil(t, row[0])
}

func TestData_UnknownVariable(t *testing.T) {
	ts := newTestServer(t, serverParams{})
	ts.dec.ds = stubDataset()

	id := uploadFile(t, ts, "model.grib2", "GRIBdata")

	rec := ts.do(t, http.MethodGet, "/api/grib/data/"+id+"?variable=no_such_var", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeJSON(t, rec)["error"], "unknown variable")
}

func TestData_InvalidLevel(t *testing.T) {
	ts := newTestServer(t, serverParams{})
	ts.dec.ds = stubDataset()

	id := uploadFile(t, ts, "model.grib2", "GRIBdata")

	rec := ts.do(t, http.MethodGet, "/api/grib/data/"+id+"?level=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDelete(t *testing.T) {
	ts := newTestServer(t, serverParams{})

	id := uploadFile(t, ts, "doomed.grib2", "GRIBdata")

	rec := ts.do(t, http.MethodDelete, "/api/grib/files/"+id, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "file deleted", decodeJSON(t, rec)["message"])

	rec = ts.do(t, http.MethodDelete, "/api/grib/files/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticUI(t *testing.T) {
	ts := newTestServer(t, serverParams{})

	rec := ts.do(t, http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "grib viewer")

	rec = ts.do(t, http.MethodGet, "/static/app.js", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "viewer")
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, serverParams{})

	rec := ts.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
