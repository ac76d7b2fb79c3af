// Package editor abstracts the editing application's scripting interface.
//
// The scripting runtime lives inside the editor, so this package never talks
// to it directly. Two drivers satisfy Client: the bridge driver speaks JSON
// over HTTP to a companion script running inside the editor, and the
// snapshot driver reads and updates a YAML export of the project for
// headless use. Callers select one through Open and otherwise depend only on
// the Client interface.
package editor
