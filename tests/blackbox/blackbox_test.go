package blackbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) (int, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	cleanup := func() { _ = ln.Close() }
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return port, cleanup
}

func projectRootFromThisFile(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// this file: <root>/tests/blackbox/blackbox_test.go
	bbDir := filepath.Dir(thisFile)
	return filepath.Dir(filepath.Dir(bbDir))
}

func buildBinary(t *testing.T) string {
	t.Helper()
	root := projectRootFromThisFile(t)
	outDir := t.TempDir()
	binPath := filepath.Join(outDir, "modelconv")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/modelconv")
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(out))
	}
	return binPath
}

// writeConverterStub writes a shell script that mimics the converter: it
// finds --output-dir in its args and drops a model.onnx there.
func writeConverterStub(t *testing.T, script string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "converter.sh")
	if err := os.WriteFile(p, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return p
}

const okConverter = `#!/bin/sh
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--output-dir" ]; then out="$a"; fi
  prev="$a"
done
mkdir -p "$out"
echo fake-onnx > "$out/model.onnx"
`

const failingConverter = `#!/bin/sh
echo "KeyError: 'seq_len' not found in dummy inputs" >&2
exit 3
`

func runCLI(t *testing.T, bin string, env []string, args ...string) (int, string) {
	t.Helper()
	cmd := exec.Command(bin, args...)
	cmd.Env = append(os.Environ(), env...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	code := 0
	if exit, ok := err.(*exec.ExitError); ok {
		code = exit.ExitCode()
	} else if err != nil {
		t.Fatalf("run %v: %v", args, err)
	}
	return code, buf.String()
}

func TestCLI_RunWorkflow(t *testing.T) {
	bin := buildBinary(t)
	stub := writeConverterStub(t, okConverter)
	work := t.TempDir()
	env := []string{
		"MODELCONV_CONVERTER_BIN=" + stub,
		"MODELCONV_MODEL_REPO=" + filepath.Join(work, "repo"),
		"MODELCONV_REPORT_CSV=" + filepath.Join(work, "report.csv"),
	}

	code, out := runCLI(t, bin, env,
		"run", "--model", "bert-base-uncased", "--batch", "1", "--seq-len", "100",
		"--output-dir", filepath.Join(work, "converted"))
	if code != 0 {
		t.Fatalf("run exit = %d\n%s", code, out)
	}
	if !strings.Contains(out, "passed") {
		t.Fatalf("expected passed state in output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(work, "repo", "bert-base-uncased", "config.pbtxt")); err != nil {
		t.Fatalf("serving config not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(work, "report.csv")); err != nil {
		t.Fatalf("csv report not written: %v", err)
	}
}

func TestCLI_RunToolFailure(t *testing.T) {
	bin := buildBinary(t)
	stub := writeConverterStub(t, failingConverter)
	work := t.TempDir()
	env := []string{
		"MODELCONV_CONVERTER_BIN=" + stub,
		"MODELCONV_MODEL_REPO=" + filepath.Join(work, "repo"),
	}

	code, out := runCLI(t, bin, env,
		"run", "--model", "bert-base-uncased", "--batch", "1", "--seq-len", "100")
	if code == 0 {
		t.Fatalf("expected non-zero exit\n%s", out)
	}
	if !strings.Contains(out, "KeyError") {
		t.Fatalf("diagnostic should pass through verbatim:\n%s", out)
	}
}

func TestCLI_ResolveRejectsNegativeDim(t *testing.T) {
	bin := buildBinary(t)
	code, out := runCLI(t, bin, nil,
		"resolve", "--model", "bert-base-uncased", "--batch", "1", "--seq-len", "-1")
	if code == 0 {
		t.Fatalf("expected non-zero exit\n%s", out)
	}
}

type serverProc struct {
	cmd  *exec.Cmd
	base string
}

func startServer(t *testing.T, bin string, env []string, port int) *serverProc {
	t.Helper()
	addr := fmt.Sprintf(":%d", port)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	cmd := exec.Command(bin, "serve", "--addr", addr)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			_ = cmd.Process.Kill()
			t.Fatalf("server did not become healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
	sp := &serverProc{cmd: cmd, base: base}
	t.Cleanup(func() { _ = cmd.Process.Kill() })
	return sp
}

func postJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func TestBlackbox_ServerFlow(t *testing.T) {
	bin := buildBinary(t)
	stub := writeConverterStub(t, okConverter)
	work := t.TempDir()
	env := []string{
		"MODELCONV_CONVERTER_BIN=" + stub,
		"MODELCONV_MODEL_REPO=" + filepath.Join(work, "repo"),
	}
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, env, port)

	// /resolve
	resp, body := postJSON(t, sp.base+"/resolve",
		[]byte(`{"model":"bert-base-uncased","batch":1,"seq_len":100}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/resolve %d %s", resp.StatusCode, string(body))
	}
	var resolved struct {
		Clauses []string `json:"clauses"`
	}
	if err := json.Unmarshal(body, &resolved); err != nil {
		t.Fatalf("decode resolve: %v", err)
	}
	if len(resolved.Clauses) != 3 || resolved.Clauses[0] != "input_ids[1,100]" {
		t.Fatalf("clauses = %v", resolved.Clauses)
	}

	// /jobs runs the full workflow against the stub converter
	payload := fmt.Sprintf(`{"model":"bert-base-uncased","source":"bert-base-uncased","format":"onnx","batch":1,"seq_len":100,"output_dir":%q}`,
		filepath.Join(work, "converted"))
	resp, body = postJSON(t, sp.base+"/jobs", []byte(payload))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/jobs %d %s", resp.StatusCode, string(body))
	}
	var st struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if st.State != "passed" {
		t.Fatalf("state = %q, body = %s", st.State, string(body))
	}

	// /jobs/{id}
	resp2, body2 := getURL(t, sp.base+"/jobs/"+st.ID)
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("/jobs/{id} %d %s", resp2.StatusCode, string(body2))
	}

	// invalid dims map to 400
	resp3, _ := postJSON(t, sp.base+"/resolve",
		[]byte(`{"model":"bert-base-uncased","batch":1,"seq_len":-1}`))
	if resp3.StatusCode != http.StatusBadRequest {
		t.Fatalf("/resolve with -1 seq_len: %d", resp3.StatusCode)
	}
}

func getURL(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}
