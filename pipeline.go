package prjxray

import (
	"context"
	"errors"
	"sync"

	"github.com/f4pga/prjxray-sub001/bitstream"
	"github.com/f4pga/prjxray-sub001/fasm"
)

// checkedSet records which tile regions have been claimed by a worker
type checkedSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (c *checkedSet) claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.keys[key]; ok {
		return false
	}
	c.keys[key] = struct{}{}
	return true
}

type frameResult struct {
	lines  []fasm.Line
	solved bitstream.Snapshot
}

func findFrames(ctx context.Context, bitdata bitstream.Snapshot) (<-chan uint32, <-chan error, error) {
	out := make(chan uint32)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		for _, frame := range bitdata.Frames() {
			select {
			case out <- frame:
			case <-ctx.Done():
				errc <- errors.New("frame walk cancelled")
				return
			}
		}
	}()
	return out, errc, nil
}

func (d *Disassembler) frameWorker(ctx context.Context, in <-chan uint32, bitdata bitstream.Snapshot, checked *checkedSet, result *frameResult) (<-chan error, error) {
	segmentMap := d.grid.SegmentMap()

	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		for frame := range in {
			for _, info := range segmentMap.SegmentInfoForFrame(frame) {
				// Only claim regions this frame can contribute bits to
				if !touched(bitdata, frame, info.Bits) {
					continue
				}
				if !checked.claim(info.Tile + "/" + info.BlockType.String()) {
					continue
				}

				lines, err := d.findFeaturesInTile(info.Tile, info.BlockType, info.Bits, bitdata, result.solved)
				if err != nil {
					errc <- err
					return
				}
				result.lines = append(result.lines, lines...)
			}

			if ctx.Err() != nil {
				errc <- ctx.Err()
				return
			}
		}
	}()
	return errc, nil
}

func waitForPipeline(errs ...<-chan error) error {
	errc := mergeErrors(errs...)
	for err := range errc {
		if err != nil {
			return err
		}
	}
	return nil
}

func mergeErrors(cs ...<-chan error) <-chan error {
	var wg sync.WaitGroup
	out := make(chan error, len(cs))
	wg.Add(len(cs))
	for _, c := range cs {
		go func(c <-chan error) {
			for n := range c {
				out <- n
			}
			wg.Done()
		}(c)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// FindFeaturesParallel decodes bitdata like FindFeaturesInBitstream,
// spreading frames across workers. Feature lines are returned in sorted
// order, followed by the unknown bit annotations of each frame in
// ascending frame order.
func (d *Disassembler) FindFeaturesParallel(ctx context.Context, bitdata bitstream.Snapshot, workers int) ([]fasm.Line, error) {
	if workers < 1 {
		workers = 1
	}
	d.reset()

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	var errcList []<-chan error

	frames, errc, err := findFrames(ctx, bitdata)
	if err != nil {
		return nil, err
	}
	errcList = append(errcList, errc)

	checked := &checkedSet{keys: make(map[string]struct{})}
	results := make([]*frameResult, workers)
	for i := 0; i < workers; i++ {
		results[i] = &frameResult{solved: make(bitstream.Snapshot)}
		errc, err := d.frameWorker(ctx, frames, bitdata, checked, results[i])
		if err != nil {
			return nil, err
		}
		errcList = append(errcList, errc)
	}

	if err := waitForPipeline(errcList...); err != nil {
		// Unblock the producer and drain so every worker exits
		cancelFunc()
		for range frames {
		}
		return nil, err
	}

	var lines []fasm.Line
	emitted := make(map[string]struct{})
	solved := make(bitstream.Snapshot)
	for _, r := range results {
		for frame, words := range r.solved {
			for word, bits := range words {
				for bit := range bits {
					solved.Set(frame, word, bit)
				}
			}
		}
		for _, line := range r.lines {
			if line.Set != nil {
				s := line.String()
				if _, ok := emitted[s]; ok {
					continue
				}
				emitted[s] = struct{}{}
			}
			lines = append(lines, line)
		}
	}
	fasm.SortLines(lines)

	unknown := 0
	for _, frame := range bitdata.Frames() {
		u := unknownLines(frame, bitdata, solved)
		unknown += countUnknown(u)
		lines = append(lines, u...)
	}

	d.finish(len(emitted), unknown)
	return lines, nil
}
