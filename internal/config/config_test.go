package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfigFile(t, "port:\n  code: CNSHA\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.App.Name != "shipwatcher" {
		t.Fatalf("默认应用名不正确: %s", cfg.App.Name)
	}
	if cfg.Scheduler.Interval != 30*time.Minute || !cfg.Scheduler.RunAtStart {
		t.Fatalf("调度默认值不正确: %+v", cfg.Scheduler)
	}
	if cfg.Database.Driver != "postgres" {
		t.Fatalf("默认存储驱动应为 postgres: %s", cfg.Database.Driver)
	}
	if cfg.Port.Timezone != "Asia/Shanghai" || cfg.Port.Lookback != 24*time.Hour || cfg.Port.Lookahead != 72*time.Hour {
		t.Fatalf("港口默认值不正确: %+v", cfg.Port)
	}
	if cfg.Rules.ArrivalSoon != 6*time.Hour || cfg.Rules.ArrivalImminent != 2*time.Hour || cfg.Rules.ArrivalUrgent != 30*time.Minute {
		t.Fatalf("到港窗口默认值不正确: %+v", cfg.Rules)
	}
	if cfg.Rules.DraughtSpike != 1.5 || cfg.Rules.StaleWarnHours != 6 || cfg.Rules.StaleCriticalHours != 24 {
		t.Fatalf("规则阈值默认值不正确: %+v", cfg.Rules)
	}
	if cfg.Export.MaxDataPoints != 100000 {
		t.Fatalf("导出默认值不正确: %d", cfg.Export.MaxDataPoints)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfigFile(t, `
port:
  code: CNNGB
  timezone: UTC
scheduler:
  interval: 5m
database:
  driver: sqlite
  path: /tmp/shipwatcher.db
rules:
  arrival_soon: 4h
  arrival_imminent: 1h
  arrival_urgent: 15m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Port.Code != "CNNGB" {
		t.Fatalf("港口代码不正确: %s", cfg.Port.Code)
	}
	if cfg.Scheduler.Interval != 5*time.Minute {
		t.Fatalf("间隔应被覆盖: %s", cfg.Scheduler.Interval)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != "/tmp/shipwatcher.db" {
		t.Fatalf("数据库配置不正确: %+v", cfg.Database)
	}
	if cfg.Rules.ArrivalSoon != 4*time.Hour {
		t.Fatalf("到港窗口应被覆盖: %s", cfg.Rules.ArrivalSoon)
	}
	if loc := cfg.Port.Location(); loc.String() != "UTC" {
		t.Fatalf("时区解析不正确: %s", loc)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing port code", ""},
		{"bad driver", "port:\n  code: CNSHA\ndatabase:\n  driver: oracle\n"},
		{"arrival order", "port:\n  code: CNSHA\nrules:\n  arrival_imminent: 7h\n"},
		{"stale order", "port:\n  code: CNSHA\nrules:\n  stale_critical_hours: 3\n"},
		{"zero interval", "port:\n  code: CNSHA\nscheduler:\n  interval: 0s\n"},
	}
	for _, tc := range cases {
		path := writeConfigFile(t, tc.body)
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: 非法配置应报错", tc.name)
		}
	}
}

func TestPortLocationFallback(t *testing.T) {
	p := PortConfig{Timezone: "Not/AZone"}
	loc := p.Location()
	if _, offset := time.Now().In(loc).Zone(); offset != 8*3600 {
		t.Fatalf("非法时区应回退到 UTC+8, 实际偏移 %d", offset)
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 500}}
	if got := cfg.ResolveMaxPoints(0); got != 500 {
		t.Fatalf("无覆盖时应返回配置值: %d", got)
	}
	if got := cfg.ResolveMaxPoints(10); got != 10 {
		t.Fatalf("覆盖值应优先: %d", got)
	}
}
