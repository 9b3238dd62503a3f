package statemachine

type cmdKind uint8

const (
	cmdSet cmdKind = iota
	cmdDelete
)

type command struct {
	kind  cmdKind
	key   string
	value string
}
