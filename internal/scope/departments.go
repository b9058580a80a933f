package scope

import (
	"golang.org/x/text/message"
	"norelock.dev/soundscope/internal/models"
)

// The first music genre labels the root department, whose id is empty.
var musicDepartments = []string{
	"Popular Music",
	"Alternative Rock", "Ambient", "Classical", "Country", "Dance",
	"Deep House", "Disco", "Drum & Bass", "Dubstep", "Electro",
	"Electronic", "Folk", "Hardcore Techno", "Hip Hop", "House",
	"Indie Rock", "Jazz", "Latin", "Metal", "Minimal Techno", "Piano",
	"Pop", "Progressive House", "Punk", "R&B", "Rap", "Reggae", "Rock",
	"Singer-Songwriter", "Soul", "Tech House", "Techno", "Trance", "Trap",
	"Trip Hop", "World",
}

var audioDepartments = []string{
	"Popular Audio",
	"Audiobooks", "Business", "Comedy", "Entertainment", "Learning",
	"News & Politics", "Religion & Spirituality", "Science", "Sports",
	"Storytelling", "Technology",
}

// Departments builds the department tree with labels from p.
func Departments(p *message.Printer) *models.Department {
	root := &models.Department{Label: p.Sprintf(musicDepartments[0])}
	for _, id := range musicDepartments[1:] {
		root.AddSubdepartment(&models.Department{ID: id, Label: p.Sprintf(id)})
	}
	for _, id := range audioDepartments {
		root.AddSubdepartment(&models.Department{ID: id, Label: p.Sprintf(id)})
	}
	return root
}

// departmentGenre maps a department id to the genre searched for it.
func departmentGenre(id string) string {
	if id == "" {
		return musicDepartments[0]
	}
	return id
}
