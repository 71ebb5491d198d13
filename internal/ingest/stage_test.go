package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/priceflow/medianpipe/internal/pool"
)

func writeTempCSV(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func drainAll(ch *Channel) []recordPair {
	var out []recordPair
	for {
		chunk, ok := ch.Take()
		if !ok {
			return out
		}
		for _, r := range chunk {
			out = append(out, recordPair{r.TS, r.Price})
		}
	}
}

type recordPair struct {
	ts    uint64
	price float64
}

func TestMalformedLineResilience(t *testing.T) {
	dir := t.TempDir()
	body := "header;ignored;ignored;ignored;ignored\n" +
		"10;x;1.5;a;b\n" +
		"badline;only_four;fields;here\n" +
		"11;x;notanumber;a;b\n" +
		"11;x;2.5;a;b\n"
	path := writeTempCSV(t, dir, "in.csv", body)

	p := pool.New(2)
	defer p.Shutdown()

	stage := New(p, 100, 10, nil)
	stage.EnqueueFile(path)
	stage.WaitComplete()

	got := drainAll(stage.Chunks())
	want := []recordPair{{10, 1.5}, {11, 2.5}}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestEmptyFileSkipped(t *testing.T) {
	dir := t.TempDir()
	path := writeTempCSV(t, dir, "empty.csv", "")

	p := pool.New(1)
	defer p.Shutdown()

	stage := New(p, 100, 10, nil)
	stage.EnqueueFile(path)
	stage.WaitComplete()

	got := drainAll(stage.Chunks())
	if len(got) != 0 {
		t.Fatalf("expected no records from empty file, got %d", len(got))
	}
}

func TestHeaderOnlyFileSkipped(t *testing.T) {
	dir := t.TempDir()
	path := writeTempCSV(t, dir, "headeronly.csv", "a;b;c;d;e\n")

	p := pool.New(1)
	defer p.Shutdown()

	stage := New(p, 100, 10, nil)
	stage.EnqueueFile(path)
	stage.WaitComplete()

	got := drainAll(stage.Chunks())
	if len(got) != 0 {
		t.Fatalf("expected no records from header-only file, got %d", len(got))
	}
}

func TestChunkExactCapacityNoSplit(t *testing.T) {
	dir := t.TempDir()
	body := "h;h;h;h;h\n"
	for i := 0; i < 4; i++ {
		body += "1;x;1.0;a;b\n"
	}
	path := writeTempCSV(t, dir, "exact.csv", body)

	p := pool.New(1)
	defer p.Shutdown()

	stage := New(p, 4, 10, nil)
	stage.EnqueueFile(path)
	stage.WaitComplete()

	count := 0
	chunks := 0
	for {
		chunk, ok := stage.Chunks().Take()
		if !ok {
			break
		}
		chunks++
		count += len(chunk)
	}
	if chunks != 1 {
		t.Errorf("expected exactly one chunk, got %d", chunks)
	}
	if count != 4 {
		t.Errorf("expected 4 records, got %d", count)
	}
}

func TestParseLine(t *testing.T) {
	cases := []struct {
		line string
		ok   bool
		rec  recordPair
	}{
		{"1;ignored;2.5;ignored;ignored", true, recordPair{1, 2.5}},
		{"1;ignored;2.5;ignored", false, recordPair{}},
		{"notanumber;ignored;2.5;ignored;ignored", false, recordPair{}},
		{"1;ignored;notanumber;ignored;ignored", false, recordPair{}},
		{"", false, recordPair{}},
	}
	for _, c := range cases {
		rec, ok := parseLine(c.line)
		if ok != c.ok {
			t.Errorf("parseLine(%q) ok = %v, want %v", c.line, ok, c.ok)
			continue
		}
		if ok && (rec.TS != c.rec.ts || rec.Price != c.rec.price) {
			t.Errorf("parseLine(%q) = %+v, want %+v", c.line, rec, c.rec)
		}
	}
}
