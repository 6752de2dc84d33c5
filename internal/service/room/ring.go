package room

// ring 定长环形缓冲，写满后覆盖最旧的元素
type ring[T any] struct {
	buf   []T
	start int
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

// push 追加元素，返回被挤出的元素（若有）
func (r *ring[T]) push(v T) (evicted T, ok bool) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return evicted, false
	}
	evicted = r.buf[r.start]
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
	return evicted, true
}

func (r *ring[T]) len() int { return r.size }

// each 从旧到新遍历，fn 返回 false 时停止
func (r *ring[T]) each(fn func(T) bool) {
	for i := 0; i < r.size; i++ {
		if !fn(r.buf[(r.start+i)%len(r.buf)]) {
			return
		}
	}
}

// items 从旧到新的拷贝
func (r *ring[T]) items() []T {
	out := make([]T, 0, r.size)
	r.each(func(v T) bool {
		out = append(out, v)
		return true
	})
	return out
}
