package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestReadFileNumbersLines(t *testing.T) {
	path := writeTempFile(t, "alpha\nbeta\ngamma")
	tool := NewReadFileTool(DefaultOutputLimits())

	args, _ := json.Marshal(ReadFileArgs{FilePath: path})
	output, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	want := "1: alpha\n2: beta\n3: gamma"
	if output != want {
		t.Errorf("output = %q, want %q", output, want)
	}
}

func TestReadFileLineRange(t *testing.T) {
	path := writeTempFile(t, "one\ntwo\nthree\nfour")
	tool := NewReadFileTool(DefaultOutputLimits())

	args, _ := json.Marshal(ReadFileArgs{FilePath: path, StartLine: 2, EndLine: 3})
	output, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	want := "2: two\n3: three"
	if output != want {
		t.Errorf("output = %q, want %q", output, want)
	}
}

func TestReadFileErrors(t *testing.T) {
	tool := NewReadFileTool(DefaultOutputLimits())
	ctx := context.Background()

	output, err := tool.Execute(ctx, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(output, string(ErrInvalidParams)) {
		t.Errorf("output = %q, want INVALID_PARAMS", output)
	}

	output, err = tool.Execute(ctx, json.RawMessage(`{"file_path":"/no/such/file"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(output, string(ErrFileNotFound)) {
		t.Errorf("output = %q, want FILE_NOT_FOUND", output)
	}

	path := writeTempFile(t, "short")
	args, _ := json.Marshal(ReadFileArgs{FilePath: path, StartLine: 99})
	output, err = tool.Execute(ctx, args)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(output, string(ErrInvalidParams)) {
		t.Errorf("output = %q, want INVALID_PARAMS for out-of-range start", output)
	}
}

func TestReadFileBinaryRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob")
	if err := os.WriteFile(path, []byte{0x7f, 'E', 'L', 'F', 0, 0, 1}, 0644); err != nil {
		t.Fatalf("failed to write binary file: %v", err)
	}
	tool := NewReadFileTool(DefaultOutputLimits())

	args, _ := json.Marshal(ReadFileArgs{FilePath: path})
	output, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(output, string(ErrBinaryFile)) {
		t.Errorf("output = %q, want BINARY_FILE", output)
	}
}

func TestReadFileTruncatesLongFiles(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString("line\n")
	}
	path := writeTempFile(t, sb.String())
	tool := NewReadFileTool(OutputLimits{MaxLines: 10, MaxBytes: 50 * 1024})

	args, _ := json.Marshal(ReadFileArgs{FilePath: path})
	output, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(output, "[Output truncated") {
		t.Errorf("output = %q, want truncation notice", output)
	}
	if strings.Contains(output, "11: ") {
		t.Error("output should stop at the line limit")
	}
}

func TestReadFilePreview(t *testing.T) {
	tool := NewReadFileTool(DefaultOutputLimits())

	tests := []struct {
		name string
		args string
		want string
	}{
		{"path only", `{"file_path":"main.go"}`, "main.go"},
		{"full range", `{"file_path":"main.go","start_line":5,"end_line":10}`, "main.go:5-10"},
		{"start only", `{"file_path":"main.go","start_line":5}`, "main.go:5-"},
		{"invalid", `{`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tool.Preview(json.RawMessage(tt.args)); got != tt.want {
				t.Errorf("Preview(%s) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}
