package analysis

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	frameSize = 2048
	hopSize   = 512

	minBPM = 60.0
	maxBPM = 200.0
	// prior centre for tempo weighting, in BPM
	preferredBPM = 120.0

	chromaLowHz  = 65.41   // C2
	chromaHighHz = 1975.53 // B6
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// spectrogram holds magnitude spectra of Hann-windowed frames.
type spectrogram struct {
	sampleRate int
	frames     [][]float64
}

func computeSpectrogram(samples []float32, sampleRate int) spectrogram {
	spec := spectrogram{sampleRate: sampleRate}
	if len(samples) < frameSize {
		return spec
	}
	fft := fourier.NewFFT(frameSize)
	buf := make([]float64, frameSize)
	coeffs := make([]complex128, frameSize/2+1)

	for start := 0; start+frameSize <= len(samples); start += hopSize {
		for i := range buf {
			buf[i] = float64(samples[start+i])
		}
		window.Hann(buf)
		coeffs = fft.Coefficients(coeffs, buf)

		mags := make([]float64, len(coeffs))
		for k, c := range coeffs {
			mags[k] = math.Hypot(real(c), imag(c))
		}
		spec.frames = append(spec.frames, mags)
	}
	return spec
}

// frameRate is the number of spectrogram frames per second.
func (s spectrogram) frameRate() float64 {
	return float64(s.sampleRate) / hopSize
}

func (s spectrogram) binHz(k int) float64 {
	return float64(k) * float64(s.sampleRate) / frameSize
}

// onsetEnvelope is the half-wave rectified spectral flux of log magnitudes,
// mean removed.
func (s spectrogram) onsetEnvelope() []float64 {
	if len(s.frames) < 2 {
		return nil
	}
	env := make([]float64, len(s.frames))
	for t := 1; t < len(s.frames); t++ {
		var flux float64
		prev, cur := s.frames[t-1], s.frames[t]
		for k := range cur {
			if d := math.Log1p(cur[k]) - math.Log1p(prev[k]); d > 0 {
				flux += d
			}
		}
		env[t] = flux
	}
	var mean float64
	for _, v := range env {
		mean += v
	}
	mean /= float64(len(env))
	for i := range env {
		env[i] -= mean
	}
	return env
}

// estimateTempo picks the autocorrelation peak of the onset envelope within
// the BPM range, weighted towards preferredBPM on a log scale.
func estimateTempo(env []float64, frameRate float64) (float64, bool) {
	minLag := int(math.Ceil(60 * frameRate / maxBPM))
	maxLag := int(math.Floor(60 * frameRate / minBPM))
	if minLag < 1 || maxLag >= len(env) || minLag > maxLag {
		return 0, false
	}

	acf := make([]float64, maxLag+2)
	for lag := minLag - 1; lag <= maxLag+1 && lag < len(env); lag++ {
		if lag < 1 {
			continue
		}
		var sum float64
		for t := 0; t+lag < len(env); t++ {
			sum += env[t] * env[t+lag]
		}
		acf[lag] = sum / float64(len(env)-lag)
	}

	best, bestScore := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		bpm := 60 * frameRate / float64(lag)
		w := math.Log2(bpm / preferredBPM)
		score := acf[lag] * math.Exp(-0.5*w*w)
		if score > bestScore {
			best, bestScore = lag, score
		}
	}
	if best == 0 {
		return 0, false
	}

	// parabolic interpolation around the peak
	lag := float64(best)
	if best > minLag && best < maxLag {
		a, b, c := acf[best-1], acf[best], acf[best+1]
		if denom := a - 2*b + c; denom != 0 {
			shift := 0.5 * (a - c) / denom
			if math.Abs(shift) <= 1 {
				lag += shift
			}
		}
	}
	return 60 * frameRate / lag, true
}

// chroma sums spectral power into the twelve pitch classes.
func (s spectrogram) chroma() [12]float64 {
	var out [12]float64
	for _, mags := range s.frames {
		for k := 1; k < len(mags); k++ {
			hz := s.binHz(k)
			if hz < chromaLowHz || hz > chromaHighHz {
				continue
			}
			midi := 12*math.Log2(hz/440) + 69
			pc := int(math.Round(midi)) % 12
			if pc < 0 {
				pc += 12
			}
			out[pc] += mags[k] * mags[k]
		}
	}
	return out
}

// estimateKey names the strongest pitch class and calls it major when its
// major third carries more energy than its minor third.
func estimateKey(chroma [12]float64) (string, bool) {
	tonic, total := 0, 0.0
	for i, v := range chroma {
		total += v
		if v > chroma[tonic] {
			tonic = i
		}
	}
	if total <= 1e-9 {
		return "", false
	}
	mode := "Minor"
	if chroma[(tonic+4)%12] > chroma[(tonic+3)%12] {
		mode = "Major"
	}
	return noteNames[tonic] + " " + mode, true
}
