//go:build !linux

package usergroup

func SetUserGroup() error {
	return nil
}
