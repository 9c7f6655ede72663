package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"videojoin/internal/capture"
	"videojoin/internal/platform/logger"
	"videojoin/internal/session"
)

// idlePeriods is how many silent recorder periods end a drained capture.
const idlePeriods = 3

func main() {
	flag.Parse()
	if flagHelp {
		help()
	}

	log := logger.NewWithWriter(os.Stderr, flagLogLevel, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id, sent, err := push(ctx, log)
	summary(id, sent, err)
	if err != nil {
		os.Exit(1)
	}
}

func push(ctx context.Context, log *slog.Logger) (string, int, error) {
	base, err := url.Parse(flagServer)
	if err != nil {
		return "", 0, errors.Wrap(err, "parse server url")
	}

	id := flagSession
	if id == "" {
		id, err = createSession(ctx, base)
		if err != nil {
			return "", 0, err
		}
		log.Info("session created", "session_id", id, "variant", flagVariant, "mode", flagMode)
	}

	dev, files, err := openDevice()
	if err != nil {
		return id, 0, err
	}

	sink, err := capture.DialWebsocket(ctx, wsURL(base, id))
	if err != nil {
		return id, 0, err
	}
	defer sink.Close()

	sender := capture.NewSender(dev, capture.Options{
		AudioBitsPerSecond: flagAudioBitrate,
		VideoBitsPerSecond: flagVideoBitrate,
		Period:             flagPeriod,
		MIME:               flagMIME,
		Mode:               capture.ParseMode(flagRecorderMode),
	}, log)
	sender.SetSink(sink.Send)

	if err := sender.Acquire(ctx, capture.Constraints{Audio: !flagNoAudio, Video: !flagNoVideo}); err != nil {
		return id, 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sender.Begin(gctx)
	})
	g.Go(func() error {
		return watch(gctx, sink, files)
	})
	err = g.Wait()
	if cerr := sender.StopRecording(); err == nil {
		err = cerr
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return id, sink.Sent(), err
}

// watch returns once every segment file is sent, the duration elapses, the
// input stays drained or the sink fails.
func watch(ctx context.Context, sink *capture.WebsocketSink, files int) error {
	ticker := time.NewTicker(flagPeriod)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if flagDuration > 0 {
		timer := time.NewTimer(flagDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	last, idle := 0, 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return nil
		case <-ticker.C:
		}
		if err := sink.Err(); err != nil {
			return err
		}
		sent := sink.Sent()
		if files > 0 && sent >= files {
			return nil
		}
		if sent == last && sent > 0 {
			idle++
			if files == 0 && idle >= idlePeriods {
				return nil
			}
			continue
		}
		last, idle = sent, 0
	}
}

// openDevice returns a segment device for positional files, otherwise a
// reader device over --input.
func openDevice() (capture.Device, int, error) {
	if files := flag.Args(); len(files) > 0 {
		return capture.NewSegmentDevice(files), len(files), nil
	}
	switch flagInput {
	case "":
		return nil, 0, capture.ErrNoDevice
	case "-":
		return capture.NewReaderDevice(io.NopCloser(os.Stdin)), 0, nil
	}
	f, err := os.Open(flagInput)
	if err != nil {
		return nil, 0, errors.Wrap(err, "open input")
	}
	return capture.NewReaderDevice(f), 0, nil
}

func createSession(ctx context.Context, base *url.URL) (string, error) {
	u := *base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/sessions"
	u.RawQuery = url.Values{"variant": {flagVariant}, "mode": {flagMode}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return "", errors.Wrap(err, "build create request")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "create session")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", errors.Errorf("create session: unexpected status %s", resp.Status)
	}

	var st session.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return "", errors.Wrap(err, "decode session")
	}
	return string(st.ID), nil
}

func wsURL(base *url.URL, id string) string {
	u := *base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/sessions/" + url.PathEscape(id) + "/ws"
	u.RawQuery = ""
	return u.String()
}
