//go:build linux

package fdloop

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller grounds the abstract readiness contract of spec §4.2 in
// epoll(7), mirroring original_source/fd/fd_epoll.c's fd_init/fd_add/
// fd_mod/fd_del/fd_run shape one-for-one.
type epollPoller struct {
	epfd int
}

func newPoller() (poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{epfd: fd}, nil
}

func toEpollEvents(ev pollEvents) uint32 {
	var e uint32
	if ev&pollRead != 0 {
		e |= unix.EPOLLIN
	}
	if ev&pollWrite != 0 {
		e |= unix.EPOLLOUT
	}
	if ev&pollErr != 0 {
		e |= unix.EPOLLPRI | unix.EPOLLERR | unix.EPOLLHUP
	}
	return e
}

func (p *epollPoller) add(fd int, ev pollEvents) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: toEpollEvents(ev),
		Fd:     int32(fd),
	})
}

func (p *epollPoller) mod(fd int, ev pollEvents) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: toEpollEvents(ev),
		Fd:     int32(fd),
	})
}

func (p *epollPoller) del(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) wait(timeout time.Duration) ([]readyEvent, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	var raw [32]unix.EpollEvent
	for {
		n, err := unix.EpollWait(p.epfd, raw[:], ms)
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return nil, err
		}
		out := make([]readyEvent, 0, n)
		for i := 0; i < n; i++ {
			e := raw[i]
			out = append(out, readyEvent{
				fd:       int(e.Fd),
				readable: e.Events&unix.EPOLLIN != 0,
				writable: e.Events&unix.EPOLLOUT != 0,
				errored:  e.Events&(unix.EPOLLPRI|unix.EPOLLERR|unix.EPOLLHUP) != 0,
			})
		}
		return out, nil
	}
}

func (p *epollPoller) close() error {
	return unix.Close(p.epfd)
}
