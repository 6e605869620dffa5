package events

const KindPlaybackCompleted Kind = "playback.completed"

// PlaybackCompleted marks the end of buffered playback Playback.
type PlaybackCompleted struct {
	Base
	Playback uint64
}

func NewPlaybackCompleted(playback uint64) PlaybackCompleted {
	return PlaybackCompleted{Base: NewBase(KindPlaybackCompleted), Playback: playback}
}
