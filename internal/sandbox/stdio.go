package sandbox

import (
	"bytes"

	"github.com/OctaHive/octabot/internal/logging"
)

const maxBufferedLine = 8 << 10 // 8KiB per line before forced flush

// lineBufferedWriter routes a plugin's stdout/stderr into structured log
// events instead of letting it interleave with the host's own log stream.
// It is not safe for concurrent use, matching that a Plugin's calls are
// already serialized by its own mutex.
type lineBufferedWriter struct {
	log    *logging.Logger
	plugin string
	stream string
	buf    bytes.Buffer
}

func newLineBufferedWriter(log *logging.Logger, plugin, stream string) *lineBufferedWriter {
	return &lineBufferedWriter{log: log, plugin: plugin, stream: stream}
}

func (w *lineBufferedWriter) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		if i := bytes.IndexByte(p, '\n'); i >= 0 {
			w.buf.Write(p[:i])
			w.flush()
			p = p[i+1:]
			continue
		}
		w.buf.Write(p)
		if w.buf.Len() > maxBufferedLine {
			w.flush()
		}
		break
	}
	return total, nil
}

func (w *lineBufferedWriter) flush() {
	if w.buf.Len() == 0 {
		return
	}
	line := w.buf.String()
	w.buf.Reset()
	if w.log == nil {
		return
	}
	logger := w.log.Named("plugin").With("plugin", w.plugin, "stream", w.stream)
	logger.Debug(line)
}
