package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Search      key.Binding
	Back        key.Binding
	Open        key.Binding
	Up          key.Binding
	Down        key.Binding
	Sort        key.Binding
	GenreLeft   key.Binding
	GenreRight  key.Binding
	GenreToggle key.Binding
	More        key.Binding
	Retry       key.Binding
	Favorite    key.Binding
	Watchlist   key.Binding
	ViewBrowse  key.Binding
	ViewFav     key.Binding
	ViewWatch   key.Binding
	Theme       key.Binding
	Quit        key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Search:      key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Back:        key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Open:        key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		Up:          key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k", "up")),
		Down:        key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j", "down")),
		Sort:        key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort")),
		GenreLeft:   key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/l", "genre")),
		GenreRight:  key.NewBinding(key.WithKeys("l", "right")),
		GenreToggle: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "filter")),
		More:        key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "more")),
		Retry:       key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry")),
		Favorite:    key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "favorite")),
		Watchlist:   key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "watchlist")),
		ViewBrowse:  key.NewBinding(key.WithKeys("1"), key.WithHelp("1/2/3", "views")),
		ViewFav:     key.NewBinding(key.WithKeys("2")),
		ViewWatch:   key.NewBinding(key.WithKeys("3")),
		Theme:       key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "theme")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Search, k.Sort, k.GenreLeft, k.GenreToggle, k.More, k.Favorite, k.Watchlist, k.ViewBrowse, k.Quit}
}

// FullHelp implements help.KeyMap
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Open, k.Back},
		{k.Search, k.Sort, k.GenreLeft, k.GenreToggle, k.More, k.Retry},
		{k.Favorite, k.Watchlist, k.ViewBrowse, k.Theme, k.Quit},
	}
}
