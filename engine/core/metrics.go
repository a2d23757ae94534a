package core

import "time"

const AvgFrameCount = 30

// FrameMetrics keeps a rolling frame time average and a once per second FPS count.
type FrameMetrics struct {
	frameAvgCounter    int
	msTimes            [AvgFrameCount]float64
	msAvg              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
	total              uint64
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{}
}

func (m *FrameMetrics) Update(frameTime time.Duration) {
	frameMS := float64(frameTime) / float64(time.Millisecond)
	m.msTimes[m.frameAvgCounter] = frameMS
	if m.frameAvgCounter == AvgFrameCount-1 {
		sum := 0.0
		for _, t := range m.msTimes {
			sum += t
		}
		m.msAvg = sum / AvgFrameCount
	}
	m.frameAvgCounter = (m.frameAvgCounter + 1) % AvgFrameCount

	m.accumulatedFrameMS += frameMS
	m.frames++
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}
	m.total++
}

func (m *FrameMetrics) FPS() float64 {
	return m.fps
}

// FrameTime is the average frame time in milliseconds over the last window.
func (m *FrameMetrics) FrameTime() float64 {
	return m.msAvg
}

func (m *FrameMetrics) TotalFrames() uint64 {
	return m.total
}
