package core

import "time"

const AVG_COUNT uint8 = 30

// FrameStatistics counts the device work one frame produced.
type FrameStatistics struct {
	Draws             uint64
	DescriptorFlushes uint64
	DescriptorWrites  uint64
	DescriptorAllocs  uint64
	PipelineBuilds    uint64
	PipelineHits      uint64
	Barriers          uint64
	Submissions       uint64
}

func (s *FrameStatistics) add(o FrameStatistics) {
	s.Draws += o.Draws
	s.DescriptorFlushes += o.DescriptorFlushes
	s.DescriptorWrites += o.DescriptorWrites
	s.DescriptorAllocs += o.DescriptorAllocs
	s.PipelineBuilds += o.PipelineBuilds
	s.PipelineHits += o.PipelineHits
	s.Barriers += o.Barriers
	s.Submissions += o.Submissions
}

type Metrics struct {
	frameAVGCounter    uint8
	msTimes            [AVG_COUNT]float64
	msAvg              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64

	current FrameStatistics
	last    FrameStatistics
	total   FrameStatistics
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Current returns the counters of the frame being recorded.
func (m *Metrics) Current() *FrameStatistics {
	return &m.current
}

// EndFrame closes the current frame's counters and updates the frame time average.
func (m *Metrics) EndFrame(elapsed time.Duration) {
	m.last = m.current
	m.total.add(m.current)
	m.current = FrameStatistics{}

	// Calculate frame ms average
	frameMS := float64(elapsed) / float64(time.Millisecond)
	m.msTimes[m.frameAVGCounter] = frameMS
	if m.frameAVGCounter == AVG_COUNT-1 {
		sum := 0.0
		for i := uint8(0); i < AVG_COUNT; i++ {
			sum += m.msTimes[i]
		}
		m.msAvg = sum / float64(AVG_COUNT)
	}
	m.frameAVGCounter++
	m.frameAVGCounter %= AVG_COUNT

	// Calculate frames per second.
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}
	m.frames++
}

func (m *Metrics) LastFrame() FrameStatistics {
	return m.last
}

func (m *Metrics) Total() FrameStatistics {
	t := m.total
	t.add(m.current)
	return t
}

func (m *Metrics) FPS() float64 {
	return m.fps
}

func (m *Metrics) FrameTime() float64 {
	return m.msAvg
}
