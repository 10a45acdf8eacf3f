package anchor

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PopupID is the id of the overlay element. At most one exists per page.
const PopupID = "note-popup-overlay"

const emptyNoteTitle = "No note content"

type popup struct {
	noteID  string
	overlay *html.Node
	card    *html.Node
	close   *html.Node
}

// PopupState describes the popup currently shown.
type PopupState struct {
	NoteID string
	Title  string
}

// ShowPopup opens the note popup for noteID. Any popup already open is
// closed first. An empty content shows a placeholder title.
func (p *Page) ShowPopup(noteID, content string) {
	p.ClosePopup()
	host := findBody(p.doc)
	if host == nil {
		return
	}
	classes := p.ClassStyling()
	title := content
	if title == "" {
		title = emptyNoteTitle
	}

	overlay := newElement(atom.Div, "id", PopupID)
	overlay.Attr = append(overlay.Attr, styleAttr(classes, overlayClass, overlayStyle))
	card := newElement(atom.Div)
	card.Attr = append(card.Attr, styleAttr(classes, cardClass, cardStyle))
	heading := newElement(atom.H3)
	heading.Attr = append(heading.Attr, styleAttr(classes, titleClass, titleStyle))
	heading.AppendChild(newText(title))
	btn := newElement(atom.Button, "type", "button")
	btn.Attr = append(btn.Attr, styleAttr(classes, closeClass, closeStyle))
	btn.AppendChild(newText("Close"))

	card.AppendChild(heading)
	card.AppendChild(btn)
	overlay.AppendChild(card)
	host.AppendChild(overlay)
	p.popup = &popup{noteID: noteID, overlay: overlay, card: card, close: btn}
}

// ClosePopup removes the popup if one is open. It reports whether anything
// was removed.
func (p *Page) ClosePopup() bool {
	if p.popup == nil {
		return false
	}
	if parent := p.popup.overlay.Parent; parent != nil {
		parent.RemoveChild(p.popup.overlay)
	}
	p.popup = nil
	return true
}

// Popup returns the popup currently shown, if any.
func (p *Page) Popup() (PopupState, bool) {
	if p.popup == nil {
		return PopupState{}, false
	}
	return PopupState{
		NoteID: p.popup.noteID,
		Title:  textContent(p.popup.card.FirstChild),
	}, true
}

// Click dispatches a click on target. Clicking the close button or the
// overlay backdrop closes the popup, clicks inside the card are ignored and
// clicking inside a marker opens that note's popup.
func (p *Page) Click(target *html.Node) {
	if pp := p.popup; pp != nil {
		switch {
		case within(target, pp.close), target == pp.overlay:
			p.ClosePopup()
			return
		case within(target, pp.overlay):
			return
		}
	}
	for n := target; n != nil; n = n.Parent {
		if id, ok := p.owner[n]; ok {
			p.ShowPopup(id, getAttr(n, "data-note-content"))
			return
		}
	}
}
