package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/leandrodaf/midiplayer/internal/logger"
	"github.com/leandrodaf/midiplayer/sdk/config"
	"github.com/leandrodaf/midiplayer/sdk/contracts"
	"github.com/leandrodaf/midiplayer/sdk/midi"
	"github.com/leandrodaf/midiplayer/sdk/sequence"
)

func main() {
	file := flag.String("file", "", "Standard MIDI File to play")
	device := flag.Int("device", 0, "index of the MIDI output device")
	configPath := flag.String("config", "", "optional YAML player configuration")
	ratio := flag.Float64("ratio", 0, "tempo ratio; overrides the configuration when set")
	seekTo := flag.Int("seek", 0, "tick position to start from")
	flag.Parse()

	log := logger.NewZapLogger()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: simple_use -file song.mid [-device n] [-config player.yaml] [-ratio r] [-seek ticks]")
		os.Exit(2)
	}

	opts := []contracts.Option{contracts.WithLogger(log)}
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatal("Failed to load configuration", log.Field().Error("error", err))
		}
		cfgOpts, err := cfg.Options()
		if err != nil {
			log.Fatal("Invalid configuration", log.Field().Error("error", err))
		}
		opts = append(opts, cfgOpts...)
	}
	if *ratio != 0 {
		opts = append(opts, contracts.WithTempoRatio(*ratio))
	}

	seq, err := sequence.Load(*file)
	if err != nil {
		log.Fatal("Failed to load MIDI file", log.Field().String("file", *file), log.Field().Error("error", err))
	}

	out, err := midi.NewOutput(opts...)
	if err != nil {
		log.Fatal("Failed to initialize MIDI output", log.Field().Error("error", err))
	}

	devices, err := out.ListDevices()
	if err != nil || len(devices) == 0 {
		log.Fatal("No MIDI devices found or error listing devices", log.Field().Error("error", err))
	}
	fmt.Println("Available MIDI devices:", devices)

	if err = out.SelectDevice(*device); err != nil {
		log.Fatal("Failed to select MIDI device", log.Field().Error("error", err))
	}

	player, err := midi.NewSequencePlayer(seq, append(opts, contracts.WithOutput(out))...)
	if err != nil {
		log.Fatal("Failed to create player", log.Field().Error("error", err))
	}
	defer func() {
		if err := player.Close(); err != nil {
			log.Error("Failed to close player", log.Field().Error("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	player.OnFinished(stop)
	player.OnError(func(_ contracts.Player, err error) {
		log.Error("Playback failed", log.Field().Error("error", err))
		stop()
	})
	player.OnPlaybackCompletedToEnd(func() {
		log.Info("Reached the end of the sequence")
	})

	if *seekTo > 0 {
		player.Seek(*seekTo)
	}
	player.Play()
	fmt.Printf("Playing %s (%v)... Press Ctrl+C to stop.\n", *file, player.TotalPlayTime())

	<-ctx.Done()
	player.Stop()
	log.Info("Stopped",
		log.Field().Int("position", player.PlayPosition()),
		log.Field().Duration("positionInTime", player.PositionInTime()))
}
