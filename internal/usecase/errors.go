package usecase

import (
	"errors"
	"fmt"
)

var (
	ErrRepository   = errors.New("repository error")
	ErrInvalidInput = errors.New("invalid input")
)

func wrapRepo(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrRepository, err)
}

func invalidInput(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
