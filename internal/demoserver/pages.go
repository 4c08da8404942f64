package demoserver

// PageVersion is one revision of a page.
type PageVersion struct {
	HTML        string
	ContentType string
	Headers     map[string]string
}

// PageDefinition holds all versions of a single page. Version 1 of every
// page is the accessible baseline; later versions introduce regressions an
// audit should catch.
type PageDefinition struct {
	Path        string
	Description string
	Versions    map[int]PageVersion
}

// GetAllPages returns all demo page definitions.
func GetAllPages() []PageDefinition {
	return []PageDefinition{
		homePage(),
		articlePage(),
		galleryPage(),
		signupPage(),
	}
}

const pageStyle = `font-family:Georgia;color:#1a1a1a;background-color:#ffffff`

func wrap(title, body string) string {
	return `<!DOCTYPE html><html lang="en"><head><title>` + title + `</title></head>` +
		`<body style="` + pageStyle + `">` + body + `</body></html>`
}

func homePage() PageDefinition {
	return PageDefinition{
		Path:        "/",
		Description: "Landing page. v2 drops the link text contrast and adds a third typeface.",
		Versions: map[int]PageVersion{
			1: {HTML: wrap("Harbour Books", `
<h1>Harbour Books</h1>
<p>Second-hand books, sorted and priced by hand. Open every day but Monday.</p>
<nav>
  <a href="/article">Read our story</a>
  <a href="/gallery">See the shop</a>
  <a href="/signup">Join the reading club</a>
</nav>`)},
			2: {HTML: wrap("Harbour Books", `
<h1 style="font-family:Impact">Harbour Books</h1>
<p style="font-family:Comic Sans MS">Second-hand books, sorted and priced by hand. Open every day but Monday.</p>
<nav>
  <a href="/article" style="color:#bbbbbb">Read our story</a>
  <a href="/gallery" style="color:#bbbbbb">See the shop</a>
  <a href="#">Click here</a>
</nav>`)},
		},
	}
}

func articlePage() PageDefinition {
	return PageDefinition{
		Path:        "/article",
		Description: "Long-form text. v2 rewrites it in dense academic prose and skips a heading level.",
		Versions: map[int]PageVersion{
			1: {HTML: wrap("Our story", `
<h1>Our story</h1>
<h2>How it started</h2>
<p>We opened in a small room by the docks. People brought us boxes of books. We read them, priced them and put them on the shelf.</p>
<h2>Where we are now</h2>
<p>The room got bigger. The boxes kept coming. We still price every book by hand.</p>`)},
			2: {HTML: wrap("Our story", `
<h1>Our story</h1>
<h4>Institutional genesis</h4>
<p>Notwithstanding considerable infrastructural limitations, the establishment's inaugural operational configuration necessitated comprehensive prioritisation of acquisitional methodologies, predominantly characterised by unsolicited philanthropic contributions of heterogeneous bibliographic materials subsequently subjected to individualised evaluative procedures.</p>`)},
		},
	}
}

func galleryPage() PageDefinition {
	return PageDefinition{
		Path:        "/gallery",
		Description: "Images. v2 removes alternative text.",
		Versions: map[int]PageVersion{
			1: {HTML: wrap("The shop", `
<h1>The shop</h1>
<img src="/static/front.jpg" alt="The shop front on a rainy morning">
<img src="/static/shelves.jpg" alt="Floor to ceiling shelves of paperbacks">`)},
			2: {HTML: wrap("The shop", `
<h1>The shop</h1>
<img src="/static/front.jpg">
<img src="/static/shelves.jpg">`)},
		},
	}
}

func signupPage() PageDefinition {
	return PageDefinition{
		Path:        "/signup",
		Description: "Form controls. v2 makes the submit button blend into the page.",
		Versions: map[int]PageVersion{
			1: {HTML: wrap("Reading club", `
<h1>Join the reading club</h1>
<form action="/signup" method="post">
  <label for="email">Email</label>
  <input id="email" name="email" type="email" style="border:1px solid #595959">
  <button type="submit" style="background-color:#1d4ed8;color:#ffffff">Join</button>
</form>`)},
			2: {HTML: wrap("Reading club", `
<h1>Join the reading club</h1>
<form action="/signup" method="post">
  <input id="email" name="email" type="email" style="border:1px solid #eeeeee">
  <button type="submit" style="background-color:#f4f4f4;color:#ffffff">Join</button>
</form>`)},
		},
	}
}
