// Command audx denoises a mono 16-bit PCM WAV file offline, streaming it
// through the same pipeline the audxd daemon uses and printing voice activity
// statistics when done.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/audxlabs/audx-go/pkg/denoise"
	"github.com/audxlabs/audx-go/pkg/denoise/energy"
	"github.com/audxlabs/audx-go/pkg/denoise/rnnoise"
	"github.com/audxlabs/audx-go/pkg/pcm"
	"github.com/audxlabs/audx-go/pkg/stream"
)

func main() {
	os.Exit(run())
}

func run() int {
	inPath := flag.String("in", "", "input WAV file (mono, 16-bit PCM)")
	outPath := flag.String("out", "", "output WAV file")
	engineName := flag.String("engine", "energy", "denoising engine: energy or rnnoise")
	quality := flag.Int("quality", 0, "resampler quality 0-10 (0 uses the default)")
	threshold := flag.Float64("threshold", stream.DefaultVADThreshold, "VAD speech threshold in [0, 1]")
	chunkSize := flag.Int("chunk", 4096, "samples submitted to the pipeline per chunk")
	flag.Parse()

	if *inPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "audx: -in and -out are required")
		flag.Usage()
		return 2
	}
	if *chunkSize <= 0 {
		fmt.Fprintln(os.Stderr, "audx: -chunk must be positive")
		return 2
	}

	if err := denoiseFile(*inPath, *outPath, *engineName, *quality, *threshold, *chunkSize); err != nil {
		fmt.Fprintf(os.Stderr, "audx: %v\n", err)
		return 1
	}
	return 0
}

func denoiseFile(inPath, outPath, engineName string, quality int, threshold float64, chunkSize int) error {
	samples, rate, err := readWAV(inPath)
	if err != nil {
		return err
	}

	engine, err := buildEngine(engineName)
	if err != nil {
		return err
	}

	cfg := stream.DefaultConfig(rate)
	if quality != 0 {
		cfg.ResampleQuality = quality
	}
	cfg.VADThreshold = threshold

	p, err := stream.New(cfg, engine)
	if err != nil {
		return err
	}

	// All output arrives on the worker goroutine; Close joins it, so the
	// collected slices are safe to read afterwards.
	out := make([]int16, 0, len(samples))
	var dropped int
	p.OnProcessedAudio(func(chunk []int16, _ float64, _ bool) {
		out = append(out, chunk...)
	})
	p.OnProcessingError(func(fe *stream.FrameError) {
		dropped++
		fmt.Fprintf(os.Stderr, "audx: frame %d dropped at %s: %v\n", fe.Frame, fe.Stage, fe.Err)
	})

	for start := 0; start < len(samples); start += chunkSize {
		end := min(start+chunkSize, len(samples))
		if err := p.Submit(samples[start:end]); err != nil {
			return err
		}
	}
	if err := p.Close(); err != nil {
		return err
	}

	if err := writeWAV(outPath, rate, out); err != nil {
		return err
	}

	printStats(p.Stats(), rate, len(samples), len(out), dropped)
	return nil
}

func buildEngine(name string) (denoise.Engine, error) {
	switch name {
	case "energy":
		return energy.New(), nil
	case "rnnoise":
		eng, err := rnnoise.New()
		if errors.Is(err, rnnoise.ErrNotBuilt) {
			return nil, errors.New("rnnoise engine requires building with -tags rnnoise")
		}
		return eng, err
	default:
		return nil, fmt.Errorf("unknown engine %q", name)
	}
}

// readWAV decodes a mono 16-bit PCM WAV file into samples and its rate.
func readWAV(path string) ([]int16, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%s is not a valid WAV file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}
	if buf.Format.NumChannels != 1 {
		return nil, 0, fmt.Errorf("%s has %d channels, only mono is supported", path, buf.Format.NumChannels)
	}
	if dec.BitDepth != 16 {
		return nil, 0, fmt.Errorf("%s is %d-bit, only 16-bit PCM is supported", path, dec.BitDepth)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return samples, buf.Format.SampleRate, nil
}

// writeWAV encodes samples as a mono 16-bit PCM WAV at rate.
func writeWAV(path string, rate int, samples []int16) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, v := range samples {
		buf.Data[i] = int(v)
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return enc.Close()
}

func printStats(st stream.Stats, rate, inSamples, outSamples, dropped int) {
	fmt.Fprintf(os.Stderr, "samples       : %d in, %d out (%s of audio)\n",
		inSamples, outSamples, pcm.Duration(outSamples, rate))
	fmt.Fprintf(os.Stderr, "frames        : %d processed, %d speech, %d dropped\n",
		st.FramesProcessed, st.SpeechFrames, dropped)
	if st.FramesProcessed > 0 {
		fmt.Fprintf(os.Stderr, "vad           : avg %.3f, min %.3f, max %.3f\n",
			st.VADAvg, st.VADMin, st.VADMax)
		fmt.Fprintf(os.Stderr, "frame time    : avg %s, max %s, total %s\n",
			st.ProcTimeAvg, st.ProcTimeMax, st.ProcTimeTotal)
	}
}
