package checksum

import "strconv"

// sizeCounter implements hash.Hash by counting bytes. Its "digest" is the
// decimal byte count, so Result equality degrades to byte-count equality.
type sizeCounter struct {
	n int64
}

func (c *sizeCounter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

func (c *sizeCounter) Sum(b []byte) []byte {
	return append(b, strconv.FormatInt(c.n, 10)...)
}

func (c *sizeCounter) Reset() {
	c.n = 0
}

func (c *sizeCounter) Size() int { return 8 }

func (c *sizeCounter) BlockSize() int { return 1 }
