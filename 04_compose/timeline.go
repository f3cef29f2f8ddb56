package compose

import "math"

// Canvas and timeline constants. The decoded audio duration is the single
// authority for total run length; everything visual is scheduled over it.
const (
	Width  = 1280
	Height = 720

	// IntroSeconds is the fixed length of the intro phase
	IntroSeconds = 6.0
	// MinSlotSeconds is the floor for per-image display time
	MinSlotSeconds = 4.0
	// EmptySlotSeconds is the slot length when no storyboard images exist
	EmptySlotSeconds = 8.0
	// GraceSeconds past the audio duration before the recording stops
	GraceSeconds = 0.5
)

// VisualKind identifies what the current frame should show
type VisualKind int

const (
	VisualNone VisualKind = iota
	VisualIntroClip
	VisualThumbnail
	VisualStoryboard
)

// SlotSeconds computes each storyboard image's on-screen duration for a
// total audio length and image count
func SlotSeconds(totalSeconds float64, imageCount int) float64 {
	if imageCount <= 0 {
		return EmptySlotSeconds
	}
	slot := (totalSeconds - IntroSeconds) / float64(imageCount)
	if slot < MinSlotSeconds {
		slot = MinSlotSeconds
	}
	return slot
}

// ImageIndex selects the storyboard image for a point in the slideshow
// phase, clamped to the last index once exceeded. Clamping protects against
// rounding overrun at the tail.
func ImageIndex(elapsedInPhase, slotSeconds float64, imageCount int) int {
	if imageCount <= 0 {
		return -1
	}
	idx := int(math.Floor(elapsedInPhase / slotSeconds))
	if idx < 0 {
		idx = 0
	}
	if idx >= imageCount {
		idx = imageCount - 1
	}
	return idx
}

// VisualAt resolves the visual selection for an elapsed time on the run's
// timeline. introPlaying means the intro clip exists and has frames left.
func VisualAt(elapsed float64, introPlaying, hasThumbnail bool, imageCount int, slotSeconds float64) (VisualKind, int) {
	if elapsed < IntroSeconds {
		switch {
		case introPlaying:
			return VisualIntroClip, -1
		case hasThumbnail:
			return VisualThumbnail, -1
		default:
			return VisualNone, -1
		}
	}
	if imageCount <= 0 {
		return VisualNone, -1
	}
	return VisualStoryboard, ImageIndex(elapsed-IntroSeconds, slotSeconds, imageCount)
}
