package eventloop

import "golang.org/x/sys/unix"

func pipeFDs() (r, w int, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}

func closeFD(fd int) { _ = unix.Close(fd) }

func writeByte(fd int) { _, _ = unix.Write(fd, []byte{1}) }
