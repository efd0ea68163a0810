package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestFetchVesselsMissingConfig(t *testing.T) {
	c := NewClient(Options{}, noopLogger())
	if _, err := c.FetchVessels(context.Background(), "CNSHA", 0, 0); err == nil {
		t.Fatal("缺少 base url 时应返回错误")
	}

	c = NewClient(Options{BaseURL: "http://localhost"}, noopLogger())
	if _, err := c.FetchVessels(context.Background(), "CNSHA", 0, 0); err == nil {
		t.Fatal("缺少 api key 时应返回错误")
	}

	c = NewClient(Options{BaseURL: "http://localhost", APIKey: "k"}, noopLogger())
	if _, err := c.FetchVessels(context.Background(), "", 0, 0); err == nil {
		t.Fatal("缺少港口代码时应返回错误")
	}
}

func TestFetchVesselsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/ports/CNSHA/vessels" {
			t.Fatalf("路径不正确: %s", r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "secret" {
			t.Fatal("缺少鉴权头")
		}
		q := r.URL.Query()
		if q.Get("from") != "1000" || q.Get("to") != "2000" {
			t.Fatalf("查询参数不正确: %s", r.URL.RawQuery)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"vessels": []map[string]any{
				{
					"mmsi":       413000000,
					"name":       " COSCO PRIDE ",
					"flag":       "CN",
					"eta":        "2025-03-01 22:00",
					"draught":    "12.5",
					"lastUpdate": "2025-03-01 10:00:00",
				},
				{
					"mmsi": "356000000",
					"flag": "PA",
				},
				// 缺 MMSI, 应跳过。
				{"name": "GHOST"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "secret", Timeout: time.Second}, noopLogger())
	records, err := c.FetchVessels(context.Background(), "CNSHA", 1000, 2000)
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("期望 2 条记录, 实际 %d", len(records))
	}
	if records[0].MMSI != "413000000" {
		t.Fatalf("数值 MMSI 应转为字符串: %s", records[0].MMSI)
	}
	if records[0].Name != "COSCO PRIDE" {
		t.Fatalf("名称应去除空白: %q", records[0].Name)
	}
	if records[0].Draught != "12.5" {
		t.Fatalf("吃水应原样保留: %#v", records[0].Draught)
	}
	if records[1].MMSI != "356000000" || records[1].Flag != "PA" {
		t.Fatalf("第二条记录不匹配: %+v", records[1])
	}
}

func TestFetchVesselsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "rate limited"})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "k", Timeout: time.Second}, noopLogger())
	_, err := c.FetchVessels(context.Background(), "CNSHA", 0, 0)
	if err == nil {
		t.Fatal("HTTP 429 应返回错误")
	}
	if got := err.Error(); got != "feed api error (429): rate limited" {
		t.Fatalf("错误信息不匹配: %s", got)
	}
}

func TestFetchVesselsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "k", Timeout: time.Second}, noopLogger())
	if _, err := c.FetchVessels(context.Background(), "CNSHA", 0, 0); err == nil {
		t.Fatal("无法解析的响应体应返回错误")
	}
}
