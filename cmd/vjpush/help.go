package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"videojoin/internal/capture"
)

var (
	flagServer       string
	flagSession      string
	flagVariant      string
	flagMode         string
	flagRecorderMode string
	flagInput        string
	flagPeriod       time.Duration
	flagDuration     time.Duration
	flagAudioBitrate int
	flagVideoBitrate int
	flagMIME         string
	flagNoAudio      bool
	flagNoVideo      bool
	flagLogLevel     string
	flagHelp         bool
)

func init() {
	flag.StringVarP(&flagServer, "server", "s", "http://localhost:8080", "Join service base URL")
	flag.StringVarP(&flagSession, "session", "S", "", "Existing session id")
	flag.StringVar(&flagVariant, "variant", "discrete", "Variant of a created session")
	flag.StringVar(&flagMode, "mode", "realtime", "Mode of a created session")
	flag.StringVarP(&flagRecorderMode, "recorder", "r", "pingpong", "Recorder mode")
	flag.StringVarP(&flagInput, "input", "i", "", "Byte stream to capture")
	flag.DurationVarP(&flagPeriod, "period", "p", capture.DefaultPeriod, "Recorder period")
	flag.DurationVarP(&flagDuration, "duration", "d", 0, "Stop after this long")
	flag.IntVar(&flagAudioBitrate, "audio-bitrate", capture.DefaultAudioBitsPerSecond, "Audio bitrate")
	flag.IntVar(&flagVideoBitrate, "video-bitrate", capture.DefaultVideoBitsPerSecond, "Video bitrate")
	flag.StringVar(&flagMIME, "mime", capture.DefaultMIME, "Recording MIME type")
	flag.BoolVar(&flagNoAudio, "no-audio", false, "Capture without audio")
	flag.BoolVar(&flagNoVideo, "no-video", false, "Capture without video")
	flag.StringVar(&flagLogLevel, "log-level", "info", "Log level")
	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
}

const helpString = `Push captured media chunks into a join session

Usage: vjpush [OPTION]... [SEGMENT]...

With SEGMENT files, each file is sent as one chunk per recorder period.
Otherwise --input is captured at the configured bitrates ("-" for stdin).

Session:
  -s, --server=URL         Join service base URL (default: http://localhost:8080)
  -S, --session=ID         Push into an existing session instead of creating one
      --variant=NAME       discrete, stream or audio (default: discrete)
      --mode=NAME          realtime or buffered (default: realtime)

Capture:
  -i, --input=FILE         Byte stream to capture
  -r, --recorder=MODE      pingpong or single (default: pingpong)
  -p, --period=DURATION    Recorder period (default: 600ms)
  -d, --duration=DURATION  Stop after this long (default: until input drains)
      --audio-bitrate=NUM  Audio bits per second (default: 320000)
      --video-bitrate=NUM  Video bits per second (default: 500000)
      --mime=TYPE          Recording MIME type (default: video/webm;codecs=vp8,opus)
      --no-audio           Capture without audio
      --no-video           Capture without video

Miscellaneous:
      --log-level=LEVEL    debug, info, warn or error (default: info)
  -h, --help               Prints this help message and exits`

// help prints usage information and exits successfully.
func help() {
	color.New(color.FgCyan, color.Bold).Println("vjpush")
	fmt.Println(helpString)
	os.Exit(0)
}

// summary reports the outcome of a push.
func summary(id string, sent int, err error) {
	label := color.New(color.FgCyan)
	label.Print("session ")
	fmt.Println(id)
	label.Print("chunks  ")
	fmt.Println(sent)
	if err != nil {
		color.New(color.FgRed).Println("error   ", err)
		return
	}
	color.New(color.FgGreen).Println("done")
}
