package providers

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// sseFrame is one dispatched Server-Sent Events message.
type sseFrame struct {
	Event string
	Data  string
}

// readSSE parses an event stream and calls onFrame for each frame carrying
// data. The context is checked before every frame, so an aborted call stops
// at the next event boundary.
func readSSE(ctx context.Context, r io.Reader, onFrame func(sseFrame) error) error {
	reader := bufio.NewReaderSize(r, 64*1024)
	var eventName string
	var dataLines []string

	flush := func() error {
		if len(dataLines) == 0 {
			eventName = ""
			return nil
		}
		frame := sseFrame{Event: eventName, Data: strings.Join(dataLines, "\n")}
		eventName = ""
		dataLines = nil
		if ctx.Err() != nil {
			return abortError(ctx)
		}
		return onFrame(frame)
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			if ctx.Err() != nil {
				return abortError(ctx)
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if fErr := flush(); fErr != nil {
				return fErr
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(line[len("data:"):], " "))
		}

		if err == io.EOF {
			return flush()
		}
	}
}
