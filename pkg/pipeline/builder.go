package pipeline

// SignalPipelineBuilder assembles a per-session pipeline in three bands:
// pre (normalization, gating), core (extraction, dispatch), post (serializers).
type SignalPipelineBuilder struct {
	pre  []FrameProcessor
	core []FrameProcessor
	post []FrameProcessor
}

func NewSignalPipelineBuilder() *SignalPipelineBuilder {
	return &SignalPipelineBuilder{}
}

func (b *SignalPipelineBuilder) WithProcessor(p FrameProcessor) *SignalPipelineBuilder {
	b.core = append(b.core, p)
	return b
}

func (b *SignalPipelineBuilder) WithProcessorList(list []FrameProcessor) *SignalPipelineBuilder {
	for _, p := range list {
		if p != nil {
			b.core = append(b.core, p)
		}
	}
	return b
}

func (b *SignalPipelineBuilder) WithExtractor(p FrameProcessor) *SignalPipelineBuilder {
	return b.WithProcessor(p)
}

func (b *SignalPipelineBuilder) WithDispatcher(p FrameProcessor) *SignalPipelineBuilder {
	return b.WithProcessor(p)
}

func (b *SignalPipelineBuilder) WithAgent(p FrameProcessor) *SignalPipelineBuilder {
	return b.WithProcessor(p)
}

func (b *SignalPipelineBuilder) WithGate(p FrameProcessor) *SignalPipelineBuilder {
	b.pre = append(b.pre, p)
	return b
}

func (b *SignalPipelineBuilder) WithSerializer(p FrameProcessor) *SignalPipelineBuilder {
	b.post = append(b.post, p)
	return b
}

func (b *SignalPipelineBuilder) Build(cfg Config) Orchestrator {
	return NewWithPipelineConfig(PipelineConfig{
		Config:     cfg,
		Processors: append(append(b.pre, b.core...), b.post...),
	})
}
