package manager

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/Tyrowin/linechat/internal/server"
)

// Response lines written back to management sessions.
const (
	RespStarted        = "Сервер запущен"
	RespAlreadyRunning = "Сервер уже работает"
	RespStopped        = "Сервер остановлен"
	RespNotRunning     = "Сервер не запущен"
	RespRunning        = "Сервер работает"
	RespFullStop       = "Приложение остановлено"
	RespPortLocked     = "Невозможно изменить порт, пока сервер запущен"
	RespInvalidPort    = "Неверный номер порта"
	RespUnknown        = "Неизвестная команда"
)

// Controller is the server control surface driven by management commands.
type Controller interface {
	StartServer() error
	StopServer() error
	IsRunning() bool
	SetPort(p int) error
	FullStopApp()
}

// clientCounter is implemented by controllers that can report their
// registry size.
type clientCounter interface {
	ClientCount() int
}

func portChanged(p int) string {
	return fmt.Sprintf("Порт сервера изменен на %d", p)
}

func startFailed(err error) string {
	return fmt.Sprintf("Не удалось запустить сервер: %v", err)
}

func clientsConnected(n int) string {
	return fmt.Sprintf("Подключено клиентов: %d", n)
}

// parsePort accepts an integer in 0..65535.
func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil || p < 0 || p > 65535 {
		return 0, fmt.Errorf("%w: %q", server.ErrInvalidPort, s)
	}
	return p, nil
}

// execute runs one command and returns its response. fullStop reports that
// the caller must invoke FullStopApp once the response has been written.
func execute(ctrl Controller, command string) (response string, fullStop bool) {
	fields := strings.Fields(strings.ToLower(command))
	if len(fields) == 0 {
		return RespUnknown, false
	}

	switch fields[0] {
	case "start":
		if len(fields) == 1 {
			return start(ctrl), false
		}
	case "stop":
		if len(fields) == 1 {
			return stop(ctrl), false
		}
	case "status":
		if len(fields) == 1 {
			if ctrl.IsRunning() {
				return RespRunning, false
			}
			return RespStopped, false
		}
	case "fullstop":
		if len(fields) == 1 {
			return RespFullStop, true
		}
	case "clients":
		if counter, ok := ctrl.(clientCounter); ok && len(fields) == 1 {
			return clientsConnected(counter.ClientCount()), false
		}
	case "port":
		return setPort(ctrl, fields[1:]), false
	}
	return RespUnknown, false
}

func start(ctrl Controller) string {
	if ctrl.IsRunning() {
		return RespAlreadyRunning
	}

	err := ctrl.StartServer()
	switch {
	case err == nil:
		return RespStarted
	case errors.Is(err, server.ErrAlreadyRunning):
		return RespAlreadyRunning
	default:
		return startFailed(err)
	}
}

func stop(ctrl Controller) string {
	if !ctrl.IsRunning() {
		return RespNotRunning
	}

	err := ctrl.StopServer()
	switch {
	case errors.Is(err, server.ErrNotRunning):
		return RespNotRunning
	case err != nil:
		log.Printf("Error stopping server: %v", err)
	}
	return RespStopped
}

func setPort(ctrl Controller, args []string) string {
	if len(args) != 1 {
		return RespInvalidPort
	}

	p, err := parsePort(args[0])
	if err != nil {
		log.Printf("Rejected port command: %v", err)
		return RespInvalidPort
	}

	err = ctrl.SetPort(p)
	switch {
	case err == nil:
		return portChanged(p)
	case errors.Is(err, server.ErrPortLocked):
		return RespPortLocked
	default:
		return RespInvalidPort
	}
}
