package date

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Date
		wantErr bool
	}{
		{in: "2026-03-01", want: New(2026, time.March, 1)},
		{in: " 2026-12-31 ", want: New(2026, time.December, 31)},
		{in: "01/03/2026", wantErr: true},
		{in: "2026-02-30", wantErr: true},
		{in: "2026-03-01T10:00:00Z", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Fatalf("want ErrInvalid, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("got %s want %s", got, tt.want)
			}
		})
	}
}

func TestJSON(t *testing.T) {
	var v struct {
		Start Date  `json:"start"`
		End   *Date `json:"end"`
	}

	if err := json.Unmarshal([]byte(`{"start":"2026-03-01","end":null}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.End != nil {
		t.Fatalf("null end should stay nil")
	}

	out, err := json.Marshal(v.Start)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `"2026-03-01"` {
		t.Fatalf("got %s", out)
	}

	err = json.Unmarshal([]byte(`{"start":"March 1st"}`), &v)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
}

func TestBefore(t *testing.T) {
	a := New(2026, time.March, 1)
	b := New(2026, time.March, 2)

	if !a.Before(b) || b.Before(a) || a.Before(a) {
		t.Fatalf("ordering is off for %s and %s", a, b)
	}
}

func TestScan(t *testing.T) {
	var d Date

	if err := d.Scan(time.Date(2026, time.May, 4, 23, 30, 0, 0, time.FixedZone("x", 3600))); err != nil {
		t.Fatalf("scan time: %v", err)
	}
	if d.String() != "2026-05-04" {
		t.Fatalf("clock part should be dropped, got %s", d)
	}

	if err := d.Scan([]byte("2026-06-01")); err != nil || d.String() != "2026-06-01" {
		t.Fatalf("scan bytes: %v %s", err, d)
	}

	if err := d.Scan(42); err == nil {
		t.Fatalf("want an error for int")
	}

	v, err := d.Value()
	if err != nil || v != "2026-06-01" {
		t.Fatalf("value: %v %v", v, err)
	}
}
