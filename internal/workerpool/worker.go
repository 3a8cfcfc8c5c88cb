package workerpool

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"os/signal"

	"github.com/paradoxindex/ckindex/internal/script"
)

// RunWorker is the subprocess entry point (spec.md §4.7 "worker
// contract"): it imports the parser once, signals readiness, then reads
// one JSON request per line from in and writes one JSON response per
// line to out until in is closed or it is told to shut down. It never
// returns an error to its caller; all failures surface as `{ok:false}`
// responses so the supervisor never has to parse stderr.
func RunWorker(in io.Reader, out io.Writer, maxParsesBeforeRecycle int) {
	signal.Ignore(os.Interrupt)

	enc := json.NewEncoder(out)
	enc.Encode(Response{Ready: true})

	parseCount := 0
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var cmd ShutdownCommand
		if json.Unmarshal(line, &cmd) == nil && cmd.Command == "shutdown" {
			return
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}

		resp := handleRequest(req)
		enc.Encode(resp)
		parseCount++

		if resp.OK && maxParsesBeforeRecycle > 0 && parseCount >= maxParsesBeforeRecycle {
			enc.Encode(Response{Recycle: true})
			return
		}
	}
}

func handleRequest(req Request) Response {
	var content string
	switch {
	case req.Path != "":
		bytes, err := os.ReadFile(req.Path)
		if err != nil {
			return Response{ID: req.ID, OK: false, ErrorType: "io", Error: err.Error()}
		}
		content = string(bytes)
	case req.Content != "":
		content = req.Content
	default:
		return Response{ID: req.ID, OK: false, ErrorType: "bug", Error: "request has neither path nor content"}
	}

	ast := script.Parse(content)
	astJSON, err := json.Marshal(ast)
	if err != nil {
		return Response{ID: req.ID, OK: false, ErrorType: "encoding", Error: err.Error()}
	}

	// A parse error is a diagnostic embedded in the AST, not a task
	// failure: the parser is total (spec.md §4.4), so ok:true here even
	// when ast.ParseOK is false.
	return Response{ID: req.ID, OK: true, ASTJson: string(astJSON), NodeCount: ast.NodeCount}
}
