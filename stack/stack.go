package stack

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saiset-co/sai-render/types"
)

type State string

const (
	StateStart          State = "start"
	StateChainResolved  State = "chain_resolved"
	StateTemplateReady  State = "template_ready"
	StateEngineExecuted State = "engine_executed"
	StateOutputEmitted  State = "output_emitted"
	StateCached         State = "cached"
	StateDone           State = "done"
)

// Frame is the render context of one top-level or dynamic render.
type Frame struct {
	ID                uuid.UUID
	Request           *types.Request
	TranslationDomain string
	CacheExpiry       time.Duration
	CacheEnabled      bool
	ETag              string
	Tags              []string
	Messages          []types.UIMessage

	// TopLevel marks the page frame pushed by Serve. Only its output is
	// stored in the content cache.
	TopLevel bool

	state State
}

func (f *Frame) State() State {
	return f.state
}

func (f *Frame) SetState(state State) {
	f.state = state
}

// AddTags appends tags not yet carried by the frame.
func (f *Frame) AddTags(tags ...string) {
	for _, tag := range tags {
		if tag == "" || f.HasTag(tag) {
			continue
		}
		f.Tags = append(f.Tags, tag)
	}
}

func (f *Frame) HasTag(tag string) bool {
	for _, t := range f.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (f *Frame) AddMessage(msg types.UIMessage) {
	f.Messages = append(f.Messages, msg)
}

// Defaults seed every new frame.
type Defaults struct {
	CacheExpiry  time.Duration
	CacheEnabled bool
}

// Stack is a LIFO of frames owned by a single top-level render.
type Stack struct {
	mu       sync.Mutex
	frames   []*Frame
	defaults Defaults
}

func New(defaults Defaults) *Stack {
	return &Stack{defaults: defaults}
}

// Create pushes a new frame. A nil req reuses the request of the current top.
func (s *Stack) Create(req *types.Request) *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.push(req)
}

func (s *Stack) push(req *types.Request) *Frame {
	if req == nil && len(s.frames) > 0 {
		req = s.frames[len(s.frames)-1].Request
	}

	frame := &Frame{
		ID:           uuid.New(),
		Request:      req,
		CacheExpiry:  s.defaults.CacheExpiry,
		CacheEnabled: s.defaults.CacheEnabled,
		state:        StateStart,
	}
	if req != nil {
		frame.TranslationDomain = req.ComponentName()
	}

	s.frames = append(s.frames, frame)
	return frame
}

// Delete pops the top frame.
func (s *Stack) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.frames) == 0 {
		return types.ErrEmptyStack
	}

	s.frames[len(s.frames)-1] = nil
	s.frames = s.frames[:len(s.frames)-1]
	return nil
}

func (s *Stack) Current() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.frames) == 0 {
		return nil, types.ErrEmptyStack
	}

	return s.frames[len(s.frames)-1], nil
}

// Outer returns the frame directly below the top, or nil.
func (s *Stack) Outer() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.frames) < 2 {
		return nil
	}
	return s.frames[len(s.frames)-2]
}

func (s *Stack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.frames)
}

// Enter pushes a frame and returns a release func that pops it together with
// any frame left above it. Release is idempotent and meant to be deferred.
func (s *Stack) Enter(req *types.Request) (*Frame, func()) {
	s.mu.Lock()
	depth := len(s.frames)
	frame := s.push(req)
	s.mu.Unlock()

	var once sync.Once
	return frame, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()

			if len(s.frames) <= depth || s.frames[depth] != frame {
				return
			}
			for i := depth; i < len(s.frames); i++ {
				s.frames[i] = nil
			}
			s.frames = s.frames[:depth]
		})
	}
}

type stackKey struct{}

type frameKey struct{}

func NewContext(ctx context.Context, s *Stack) context.Context {
	return context.WithValue(ctx, stackKey{}, s)
}

func FromContext(ctx context.Context) (*Stack, bool) {
	s, ok := ctx.Value(stackKey{}).(*Stack)
	return s, ok && s != nil
}

// WithFrame hands a frame to controllers running under ctx.
func WithFrame(ctx context.Context, f *Frame) context.Context {
	return context.WithValue(ctx, frameKey{}, f)
}

func FrameFromContext(ctx context.Context) (*Frame, bool) {
	f, ok := ctx.Value(frameKey{}).(*Frame)
	return f, ok && f != nil
}
