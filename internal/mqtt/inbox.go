package mqtt

import "log"

// inbox holds frames received on the down topic until the session drains
// them on its next tick. When full, the oldest frame is overwritten.
// Callers synchronize.
type inbox struct {
	frames  [][]byte
	first   int
	n       int
	dropped int
}

func newInbox(size int) *inbox {
	return &inbox{frames: make([][]byte, size)}
}

func (b *inbox) add(frame []byte) {
	size := len(b.frames)
	if b.n == size {
		if b.dropped == 0 {
			log.Printf("mqtt: inbox full (%d frames), dropping oldest", size)
		}
		b.dropped++
		b.frames[b.first] = frame
		b.first = (b.first + 1) % size
		return
	}
	b.frames[(b.first+b.n)%size] = frame
	b.n++
}

// take empties the inbox, returning its frames oldest first and the number
// of frames overwritten since the previous take.
func (b *inbox) take() ([][]byte, int) {
	dropped := b.dropped
	b.dropped = 0
	if b.n == 0 {
		return nil, dropped
	}
	out := make([][]byte, 0, b.n)
	for i := 0; i < b.n; i++ {
		j := (b.first + i) % len(b.frames)
		out = append(out, b.frames[j])
		b.frames[j] = nil
	}
	b.first, b.n = 0, 0
	return out, dropped
}

func (b *inbox) len() int {
	return b.n
}
