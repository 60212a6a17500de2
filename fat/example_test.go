package fat_test

import (
	"fmt"
	"log"

	"github.com/memfat/memfat/fat"
)

func Example() {
	v, err := fat.New(fat.DefaultBootRecord(), nil)
	if err != nil {
		log.Fatal(err)
	}

	cwd := v.Root()
	if _, err := v.Mkdir(cwd, "home"); err != nil {
		log.Fatal(err)
	}
	if cwd, err = v.Cd(cwd, "home"); err != nil {
		log.Fatal(err)
	}
	if err := v.Write(cwd, "notes.txt", []byte("ab12")); err != nil {
		log.Fatal(err)
	}

	b, err := v.Cat(cwd, "notes.txt")
	if err != nil {
		log.Fatal(err)
	}
	pwd, err := v.Pwd(cwd)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(pwd)
	fmt.Println(string(b))
	// Output:
	// /home/
	// ab12
}

func ExampleVolume_Undelete() {
	v, err := fat.New(fat.DefaultBootRecord(), nil)
	if err != nil {
		log.Fatal(err)
	}
	root := v.Root()
	if err := v.Write(root, "letter.txt", []byte("dear diary")); err != nil {
		log.Fatal(err)
	}
	if err := v.Remove(root, "letter.txt"); err != nil {
		log.Fatal(err)
	}
	_, err = v.Cat(root, "letter.txt")
	fmt.Println(err)

	if err := v.Undelete(root, "letter.txt"); err != nil {
		log.Fatal(err)
	}
	b, err := v.Cat(root, "letter.txt")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(b))
	// Output:
	// cat letter.txt: no such file or directory
	// dear diary
}
