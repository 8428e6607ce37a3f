package replay

import (
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"snapgate/pkg/snapshot"
)

func testSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Request: snapshot.Request{Method: http.MethodGet, URL: "https://api.example.com/users?id=1"},
		Response: snapshot.Response{
			Status:     200,
			StatusText: "OK",
			Headers: snapshot.Headers{
				{"content-encoding", "gzip"},
				{"content-length", "999"},
				{"content-type", "application/json"},
				{"set-cookie", "a=1"},
				{"set-cookie", "b=2"},
			},
			Body: `{"id":1}`,
		},
	}
}

func TestResponse(t *testing.T) {
	snap := testSnapshot()
	req := httptest.NewRequest(http.MethodGet, snap.Request.URL, nil)

	resp := Response(snap, req)
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != 200 || resp.Status != "200 OK" {
		t.Fatalf("unexpected status %d %q", resp.StatusCode, resp.Status)
	}
	if string(body) != `{"id":1}` {
		t.Fatalf("unexpected body %q", body)
	}
	if resp.ContentLength != int64(len(body)) || resp.Header.Get("Content-Length") != "8" {
		t.Fatalf("content length not derived from body: %d %q", resp.ContentLength, resp.Header.Get("Content-Length"))
	}
	if resp.Header.Get("Content-Encoding") != "" {
		t.Fatalf("content-encoding replayed")
	}
	if got := resp.Header.Values("Set-Cookie"); !reflect.DeepEqual(got, []string{"a=1", "b=2"}) {
		t.Fatalf("duplicate headers lost: %v", got)
	}
	if resp.Request != req {
		t.Fatalf("request not attached")
	}
}

func TestResponseIsIdempotent(t *testing.T) {
	snap := testSnapshot()

	a := Response(snap, nil)
	b := Response(snap, nil)
	bodyA, _ := io.ReadAll(a.Body)
	bodyB, _ := io.ReadAll(b.Body)

	if a.Status != b.Status || !reflect.DeepEqual(a.Header, b.Header) || string(bodyA) != string(bodyB) {
		t.Fatalf("replays differ:\n%v %v %q\n%v %v %q", a.Status, a.Header, bodyA, b.Status, b.Header, bodyB)
	}
}

func TestResponseStatusText(t *testing.T) {
	tests := []struct {
		status int
		text   string
		want   string
	}{
		{200, "OK", "200 OK"},
		{201, "", "201 Created"},
		{299, "", "299"},
		{418, "Short And Stout", "418 Short And Stout"},
	}
	for _, tt := range tests {
		snap := &snapshot.Snapshot{Response: snapshot.Response{Status: tt.status, StatusText: tt.text}}
		if got := Response(snap, nil).Status; got != tt.want {
			t.Errorf("status line for %d %q = %q, want %q", tt.status, tt.text, got, tt.want)
		}
	}
}

func TestWriteAppendsHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Snapgate-Source", "cache")
	rec.Header().Add("Set-Cookie", "pre=0")

	if err := Write(rec, testSnapshot()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	res := rec.Result()
	if res.StatusCode != 200 {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if rec.Body.String() != `{"id":1}` {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if res.Header.Get("X-Snapgate-Source") != "cache" {
		t.Fatalf("pre-set header overwritten")
	}
	if got := res.Header.Values("Set-Cookie"); !reflect.DeepEqual(got, []string{"pre=0", "a=1", "b=2"}) {
		t.Fatalf("headers not appended in order: %v", got)
	}
	if res.Header.Get("Content-Encoding") != "" || res.Header.Get("Content-Length") == "999" {
		t.Fatalf("transport headers replayed: %v", res.Header)
	}
}
