// Package linker attaches proxy files to source media in the editor.
//
// LinkClips links known proxies by media ID and is what the queue flow uses
// after encodes finish. FindAndLink matches loose proxy files to timeline
// clips by filename and backs the link command; Watch feeds it new files as
// they land in the proxy tree.
package linker
