package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// decodeErrorBody decodes the flat error envelope from a recorder.
func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()

	var body ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", w.Body.String(), err)
	}
	return body
}

func TestRecoveryMiddleware_Panic(t *testing.T) {
	logger := discardLogger()

	panicHandler := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("test panic")
	})

	handler := recoveryMiddleware(logger)(panicHandler)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("recoveryMiddleware(panic) status = %d, want %d", w.Code, http.StatusInternalServerError)
	}

	body := decodeErrorBody(t, w)

	if body.Error != "internal_error" {
		t.Errorf("recoveryMiddleware(panic) code = %q, want %q", body.Error, "internal_error")
	}
}

func TestRecoveryMiddleware_NoPanic(t *testing.T) {
	logger := discardLogger()

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
	})

	handler := recoveryMiddleware(logger)(okHandler)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("recoveryMiddleware(ok) status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRecoveryMiddleware_PanicAfterHeaders(t *testing.T) {
	logger := discardLogger()

	handler := recoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		panic("mid-stream panic")
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	handler.ServeHTTP(w, r)

	// Headers were already sent; the middleware must not clobber them
	// with a 500.
	if w.Code != http.StatusOK {
		t.Errorf("status after mid-stream panic = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestLoggingWriter_CapturesStatusAndBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	lw := &loggingWriter{w: rec}

	lw.WriteHeader(http.StatusTeapot)
	n, err := lw.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if n != 5 {
		t.Errorf("Write() n = %d, want 5", n)
	}

	if lw.statusCode != http.StatusTeapot {
		t.Errorf("statusCode = %d, want %d", lw.statusCode, http.StatusTeapot)
	}
	if lw.bytesWritten != 5 {
		t.Errorf("bytesWritten = %d, want 5", lw.bytesWritten)
	}
}

func TestLoggingWriter_ImplicitOK(t *testing.T) {
	rec := httptest.NewRecorder()
	lw := &loggingWriter{w: rec}

	if _, err := lw.Write([]byte("x")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	if lw.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want %d (implicit on first Write)", lw.statusCode, http.StatusOK)
	}
}

func TestLoggingMiddleware_ReusesOuterWrapper(t *testing.T) {
	logger := discardLogger()

	var inner http.ResponseWriter
	handler := loggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		inner = w
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	outer := &loggingWriter{w: rec}
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	handler.ServeHTTP(outer, r)

	if inner != outer {
		t.Error("loggingMiddleware should reuse an existing *loggingWriter instead of re-wrapping")
	}
	if outer.statusCode != http.StatusAccepted {
		t.Errorf("outer statusCode = %d, want %d", outer.statusCode, http.StatusAccepted)
	}
}
