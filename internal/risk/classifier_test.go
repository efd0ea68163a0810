package risk

import (
	"testing"
	"time"

	"ais-diff-events/internal/vessel"
)

func TestClassifyByAge(t *testing.T) {
	c := New(DefaultRules(), time.UTC)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	nowMs := now.UnixMilli()

	recAt := func(age time.Duration) vessel.Record {
		ts := float64(now.Add(-age).Unix())
		return vessel.Record{LastUpdateTs: &ts}
	}

	cases := []struct {
		age  time.Duration
		want Level
	}{
		{time.Hour, Normal},
		{6 * time.Hour, Attention},
		{12 * time.Hour, Attention},
		{24 * time.Hour, High},
		{48 * time.Hour, High},
	}
	for _, tc := range cases {
		if got := c.Classify(recAt(tc.age), nowMs); got != tc.want {
			t.Fatalf("信号年龄 %s 期望 %s, 实际 %s", tc.age, tc.want, got)
		}
	}
}

func TestClassifyUnknownLastUpdate(t *testing.T) {
	c := New(DefaultRules(), time.UTC)
	if got := c.Classify(vessel.Record{}, time.Now().UnixMilli()); got != Attention {
		t.Fatalf("无法确定报位时间的记录不应为 Normal: %s", got)
	}
}

func TestLevelString(t *testing.T) {
	if Normal.String() != "NORMAL" || Attention.String() != "ATTENTION" || High.String() != "HIGH" {
		t.Fatal("级别字符串不匹配")
	}
}
