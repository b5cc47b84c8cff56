package wapps

import "database/sql"

const imageColumns = `id, title, filename, original_name, width, height, size, uploaded_at`

func scanImage(row rowScanner) (Image, error) {
	var img Image
	err := row.Scan(&img.ID, &img.Title, &img.Filename, &img.OriginalName, &img.Width, &img.Height, &img.Size, &img.UploadedAt)
	return img, err
}

// SaveImage records an uploaded image and sets its ID.
func (s *Store) SaveImage(img *Image) error {
	res, err := s.db.Exec(`INSERT INTO images (title, filename, original_name, width, height, size, uploaded_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		img.Title, img.Filename, img.OriginalName, img.Width, img.Height, img.Size, img.UploadedAt)
	if err != nil {
		return err
	}
	img.ID, err = res.LastInsertId()
	return err
}

// GetImage returns an image by id.
func (s *Store) GetImage(id int64) (Image, error) {
	return scanImage(s.db.QueryRow(`SELECT `+imageColumns+` FROM images WHERE id = ?`, id))
}

// GetImageByFilename returns an image by its stored filename.
func (s *Store) GetImageByFilename(filename string) (Image, error) {
	return scanImage(s.db.QueryRow(`SELECT `+imageColumns+` FROM images WHERE filename = ?`, filename))
}

// ListImages returns all images, newest upload first.
func (s *Store) ListImages() ([]Image, error) {
	rows, err := s.db.Query(`SELECT ` + imageColumns + ` FROM images ORDER BY uploaded_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var images []Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// DeleteImage removes an image record. Pages and identities that used it
// lose their image reference.
func (s *Store) DeleteImage(filename string) error {
	_, err := s.db.Exec(`DELETE FROM images WHERE filename = ?`, filename)
	return err
}

func (s *Store) optionalImage(id sql.NullInt64) (*Image, error) {
	if !id.Valid {
		return nil, nil
	}
	img, err := s.GetImage(id.Int64)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}
