package kokoro

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/video"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// makeWAV builds a 16-bit mono PCM WAV of the given length.
func makeWAV(sampleRate int, d time.Duration) []byte {
	byteRate := sampleRate * 2
	dataLen := int(int64(byteRate) * int64(d) / int64(time.Second))
	b := make([]byte, 44+dataLen)
	copy(b[0:], "RIFF")
	binary.LittleEndian.PutUint32(b[4:], uint32(36+dataLen))
	copy(b[8:], "WAVE")
	copy(b[12:], "fmt ")
	binary.LittleEndian.PutUint32(b[16:], 16)
	binary.LittleEndian.PutUint16(b[20:], 1)
	binary.LittleEndian.PutUint16(b[22:], 1)
	binary.LittleEndian.PutUint32(b[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(b[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(b[32:], 2)
	binary.LittleEndian.PutUint16(b[34:], 16)
	copy(b[36:], "data")
	binary.LittleEndian.PutUint32(b[40:], uint32(dataLen))
	return b
}

func TestWAVDuration(t *testing.T) {
	got, err := WAVDuration(makeWAV(24000, 1500*time.Millisecond))
	if err != nil {
		t.Fatalf("WAVDuration() error = %v", err)
	}
	if got != 1500*time.Millisecond {
		t.Errorf("duration = %v, want 1.5s", got)
	}

	if _, err := WAVDuration([]byte("ID3 not a wav file")); err == nil {
		t.Error("expected error for non-WAV input")
	}
}

func TestWAVDuration_UnknownDataSize(t *testing.T) {
	wav := makeWAV(16000, time.Second)
	binary.LittleEndian.PutUint32(wav[40:], 0xFFFFFFFF)

	got, err := WAVDuration(wav)
	if err != nil {
		t.Fatalf("WAVDuration() error = %v", err)
	}
	if got != time.Second {
		t.Errorf("duration = %v, want 1s", got)
	}
}

func TestSynthesize_Success(t *testing.T) {
	var gotReq speechRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(makeWAV(24000, 2*time.Second))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second, testLogger())
	clip, err := client.Synthesize(context.Background(), "Hello world", "am_adam")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if clip.DurationMs != 2000 {
		t.Errorf("duration = %d, want 2000", clip.DurationMs)
	}
	if gotReq.Input != "Hello world" || gotReq.Voice != "am_adam" || gotReq.Model != "kokoro" || gotReq.ResponseFormat != "wav" {
		t.Errorf("request = %+v", gotReq)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"model crashed"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "kokoro", 5*time.Second, testLogger())
	_, err := client.Synthesize(context.Background(), "Hello", video.DefaultVoice)
	if !errors.Is(err, video.ErrSynthesis) {
		t.Fatalf("error = %v, want ErrSynthesis", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError in chain", err)
	}
	if apiErr.StatusCode != 500 || !apiErr.IsRetryable() {
		t.Errorf("api error = %+v", apiErr)
	}
}

func TestSynthesize_BadAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not audio"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "kokoro", 5*time.Second, testLogger())
	if _, err := client.Synthesize(context.Background(), "Hello", video.DefaultVoice); !errors.Is(err, video.ErrSynthesis) {
		t.Fatalf("error = %v, want ErrSynthesis", err)
	}
}
