//go:build unix && !linux

package fdloop

import (
	"time"

	"golang.org/x/sys/unix"
)

// pollPoller is the portable fallback for unix-like targets without epoll
// (e.g. Darwin, the BSDs), grounding the same "wait for readable, writable,
// errored or timeout" contract in poll(2) instead.
type pollPoller struct {
	fds map[int]pollEvents
}

func newPoller() (poller, error) {
	return &pollPoller{fds: make(map[int]pollEvents)}, nil
}

func (p *pollPoller) add(fd int, ev pollEvents) error {
	p.fds[fd] = ev
	return nil
}

func (p *pollPoller) mod(fd int, ev pollEvents) error {
	p.fds[fd] = ev
	return nil
}

func (p *pollPoller) del(fd int) error {
	delete(p.fds, fd)
	return nil
}

func toPollfd(fd int, ev pollEvents) unix.PollFd {
	var events int16
	if ev&pollRead != 0 {
		events |= unix.POLLIN
	}
	if ev&pollWrite != 0 {
		events |= unix.POLLOUT
	}
	if ev&pollErr != 0 {
		events |= unix.POLLPRI
	}
	return unix.PollFd{Fd: int32(fd), Events: events}
}

func (p *pollPoller) wait(timeout time.Duration) ([]readyEvent, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	fds := make([]unix.PollFd, 0, len(p.fds))
	for fd, ev := range p.fds {
		fds = append(fds, toPollfd(fd, ev))
	}
	for {
		n, err := unix.Poll(fds, ms)
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		out := make([]readyEvent, 0, n)
		for _, pfd := range fds {
			if pfd.Revents == 0 {
				continue
			}
			out = append(out, readyEvent{
				fd:       int(pfd.Fd),
				readable: pfd.Revents&unix.POLLIN != 0,
				writable: pfd.Revents&unix.POLLOUT != 0,
				errored:  pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0,
			})
		}
		return out, nil
	}
}

func (p *pollPoller) close() error {
	return nil
}
