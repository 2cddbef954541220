/*
Package script drives surfaces from sandboxed JavaScript.

# Overview

A script runs in a goja VM with a small document API bound to one surface.
Every edit goes through the surface, so the usual batching applies and
connected clients receive the resulting mutate messages.

	document.root                       root element proxy
	document.createElement(tag)         detached element
	document.createTextNode(text)       detached text node
	document.getNode(id)                proxy or null

	node.id, node.nodeType
	node.appendChild(child)             also moves an attached child
	node.insertChild(child, index)
	node.removeChild(child)
	node.removeChildAt(index)
	node.setProperty(name, value)       value keeps its JS type
	node.getProperty(name)
	node.setText(text)                  text nodes only
	node.children(), node.parent()

	remote.call(method, ...args)        returns the call id

# Security Model

require, process, module and exports are removed. setTimeout and
setInterval are no-ops. Execution stops when the timeout elapses or the
context is cancelled.

A Go panic raised by the tree (for example removeChildAt with an index out
of range) ends the script with ErrInvariant and the VM is rebuilt.

# Usage Example

	pool, err := script.NewPool(script.DefaultConfig(), 4)
	if err != nil {
		return err
	}
	defer pool.Close()

	result, err := pool.Execute(ctx, `document.root.appendChild(document.createTextNode("hi"))`, s)
*/
package script
