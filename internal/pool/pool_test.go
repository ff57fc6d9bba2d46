package pool_test

import (
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/marlecce/emme/internal/aio"
	"github.com/marlecce/emme/internal/pool"
)

var _ = Describe("Pool", func() {
	It("runs min workers immediately", func() {
		p := pool.New(3, 8)
		defer p.Shutdown()

		Expect(p.Size()).To(Equal(3))
	})

	It("clamps max below min up to min", func() {
		p := pool.New(4, 1)
		defer p.Shutdown()

		Expect(p.Size()).To(Equal(4))
	})

	It("runs every submitted task exactly once", func() {
		p := pool.New(2, 4)
		defer p.Shutdown()

		const n = 200
		var count int64
		var wg sync.WaitGroup
		wg.Add(n)

		for i := 0; i < n; i++ {
			ok := p.Add(func(h *aio.Handle) {
				atomic.AddInt64(&count, 1)
				wg.Done()
			})
			Expect(ok).To(BeTrue())
		}

		wg.Wait()
		Expect(atomic.LoadInt64(&count)).To(Equal(int64(n)))
	})

	It("scales up under backlog and back down after the idle timeout", func() {
		p := pool.New(1, 6)
		defer p.Shutdown()

		release := make(chan struct{})
		var started int64

		for i := 0; i < 6; i++ {
			p.Add(func(h *aio.Handle) {
				atomic.AddInt64(&started, 1)
				<-release
			})
		}

		Eventually(func() int { return p.Size() }, "2s", "10ms").Should(BeNumerically(">", 1))

		close(release)

		Eventually(func() int { return p.Size() }, pool.IdleTimeout+2*time.Second, "50ms").Should(Equal(1))
	})

	It("rejects new work after Shutdown and never blocks the caller", func() {
		p := pool.New(1, 2)
		p.Shutdown()

		ok := p.Add(func(h *aio.Handle) {})
		Expect(ok).To(BeFalse())
	})
})
